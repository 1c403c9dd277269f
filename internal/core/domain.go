package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "familybudget/internal/errors"
)

const (
	KindExpense Kind = "EXPENSE"
	KindIncome  Kind = "INCOME"
)

// Item constraints.
const (
	ItemNameMinLen = 2
	ItemNameMaxLen = 20
	MaxQuantity    = 32767
)

// Field error codes returned to API clients.
const (
	CodeNameAlreadyExist = "name_already_exist"
	CodeInvalidLength    = "invalid_length"
	CodeInvalidChoice    = "invalid_choice"
	CodeInvalidAmount    = "invalid_amount"
	CodeInvalidQuantity  = "invalid_quantity"
	CodeRequired         = "required"
)

type (
	// Kind selects which aggregate an item contributes to.
	Kind string

	Money struct {
		Cents int64
	}

	User struct {
		ID           string
		Email        string
		FirstName    string
		LastName     string
		PasswordHash string
		Income       Money
		Expenses     Money
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	BudgetItem struct {
		ID             string
		UserID         string
		Kind           Kind
		Name           string
		Amount         Money
		Quantity       int
		LinkedToBudget bool
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	// NewItem is the input of an item creation. A nil Quantity means the
	// client did not send one.
	NewItem struct {
		Name     string
		Amount   Money
		Kind     Kind
		Quantity *int
	}

	// ItemPatch carries a partial item update; nil fields are left alone.
	ItemPatch struct {
		Name     *string
		Amount   *Money
		Quantity *int
		Kind     *Kind
	}

	// ItemFilter narrows an item listing.
	ItemFilter struct {
		UserID    string
		Kind      Kind
		MinAmount *Money
		MaxAmount *Money
		Search    string
		Page      Page
	}

	Page struct {
		Limit  int
		Offset int
	}
)

var ErrUnknownKind = errors.New("unknown item kind")

// Kinds lists every item kind. Code switching over Kind must handle each.
func Kinds() []Kind {
	return []Kind{KindExpense, KindIncome}
}

// ParseKind is case-insensitive; an empty string selects EXPENSE.
func ParseKind(s string) (Kind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return KindExpense, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome:
		return true
	}
	return false
}

// Balance is income minus expenses, for display only.
func (u User) Balance() Money {
	return u.Income.Sub(u.Expenses)
}

// Total is the item's signed contribution: quantity × amount for an
// expense, amount for an income.
func (i BudgetItem) Total() (Money, error) {
	switch i.Kind {
	case KindExpense:
		return i.Amount.Mul(i.Quantity), nil
	case KindIncome:
		return i.Amount, nil
	}
	return Money{}, fmt.Errorf("%w: %q", ErrUnknownKind, i.Kind)
}

// Validate checks every client-controlled field and reports all failures.
func (i BudgetItem) Validate() error {
	fe := apperrors.FieldErrors{}
	if err := ValidateItemName(i.Name); err != nil {
		fe.Add("name", CodeInvalidLength, err.Error())
	}
	if !i.Kind.Valid() {
		fe.Add("type", CodeInvalidChoice, fmt.Sprintf("%q is not a valid choice", i.Kind))
	}
	if i.Amount.IsNegative() || i.Amount.Cents > MaxAmountCents {
		fe.Add("amount", CodeInvalidAmount, "must be between 0.00 and 9999999.99")
	}
	if i.Quantity < 0 || i.Quantity > MaxQuantity {
		fe.Add("quantity", CodeInvalidQuantity, fmt.Sprintf("must be between 0 and %d", MaxQuantity))
	}
	return fe.Err()
}

// ValidateItemName enforces the 2–20 character bound, counted in runes.
func ValidateItemName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < ItemNameMinLen || n > ItemNameMaxLen {
		return fmt.Errorf("must be between %d and %d characters", ItemNameMinLen, ItemNameMaxLen)
	}
	return nil
}

// Build turns the creation input into an item owned by userID. EXPENSE
// quantity defaults to 1; INCOME ignores quantity and stores 0.
func (n NewItem) Build(userID string) BudgetItem {
	kind := n.Kind
	if kind == "" {
		kind = KindExpense
	}
	item := BudgetItem{
		UserID: userID,
		Kind:   kind,
		Name:   strings.TrimSpace(n.Name),
		Amount: n.Amount,
	}
	switch kind {
	case KindExpense:
		item.Quantity = 1
		if n.Quantity != nil {
			item.Quantity = *n.Quantity
		}
	case KindIncome:
		item.Quantity = 0
	}
	return item
}

// Apply returns the item with the patch applied. Switching an item to
// INCOME zeroes its quantity; switching to EXPENSE without a quantity
// sets it to 1.
func (p ItemPatch) Apply(i BudgetItem) BudgetItem {
	if p.Name != nil {
		i.Name = strings.TrimSpace(*p.Name)
	}
	if p.Amount != nil {
		i.Amount = *p.Amount
	}
	if p.Kind != nil {
		i.Kind = *p.Kind
	}
	if p.Quantity != nil {
		i.Quantity = *p.Quantity
	}
	switch i.Kind {
	case KindIncome:
		i.Quantity = 0
	case KindExpense:
		if p.Kind != nil && p.Quantity == nil && i.Quantity == 0 {
			i.Quantity = 1
		}
	}
	return i
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Name == nil && p.Amount == nil && p.Quantity == nil && p.Kind == nil
}

// Normalize clamps the page to [1, max] with a default limit.
func (p Page) Normalize(def, max int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
