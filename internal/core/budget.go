package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "familybudget/internal/errors"
)

const (
	CategoryGeneral       Category = "GENERAL"
	CategoryHousehold     Category = "HOUSEHOLD"
	CategoryFood          Category = "FOOD"
	CategoryTransport     Category = "TRANSPORT"
	CategoryUtilities     Category = "UTILITIES"
	CategoryHealth        Category = "HEALTH"
	CategoryEducation     Category = "EDUCATION"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategorySavings       Category = "SAVINGS"
	CategoryOther         Category = "OTHER"
)

const (
	BudgetNameMinLen = 2
	BudgetNameMaxLen = 75
)

type (
	Category string

	// Budget groups items without owning them: deleting a budget never
	// deletes an item, and an item may sit in several budgets.
	Budget struct {
		ID        string
		UserID    string
		Category  Category
		Name      string
		ItemIDs   []string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	NewBudget struct {
		Name     string
		Category Category
		ItemIDs  []string
	}

	BudgetPatch struct {
		Name     *string
		Category *Category
		ItemIDs  *[]string
	}

	// BudgetSummary totals the member items of a budget for display. It is
	// never written back to a user.
	BudgetSummary struct {
		Income    Money
		Expenses  Money
		ItemCount int
	}
)

func Categories() []Category {
	return []Category{
		CategoryGeneral, CategoryHousehold, CategoryFood, CategoryTransport,
		CategoryUtilities, CategoryHealth, CategoryEducation,
		CategoryEntertainment, CategorySavings, CategoryOther,
	}
}

// ParseCategory is case-insensitive; an empty string selects GENERAL.
func ParseCategory(s string) (Category, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return CategoryGeneral, nil
	}
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

func (b Budget) Validate() error {
	fe := apperrors.FieldErrors{}
	n := utf8.RuneCountInString(b.Name)
	if n < BudgetNameMinLen || n > BudgetNameMaxLen {
		fe.Add("name", CodeInvalidLength, fmt.Sprintf("must be between %d and %d characters", BudgetNameMinLen, BudgetNameMaxLen))
	}
	if !b.Category.Valid() {
		fe.Add("category", CodeInvalidChoice, fmt.Sprintf("%q is not a valid choice", b.Category))
	}
	return fe.Err()
}

func (n NewBudget) Build(userID string) Budget {
	cat := n.Category
	if cat == "" {
		cat = CategoryGeneral
	}
	return Budget{
		UserID:   userID,
		Category: cat,
		Name:     strings.TrimSpace(n.Name),
		ItemIDs:  dedupe(n.ItemIDs),
	}
}

func (p BudgetPatch) Apply(b Budget) Budget {
	if p.Name != nil {
		b.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.ItemIDs != nil {
		b.ItemIDs = dedupe(*p.ItemIDs)
	}
	return b
}

// Summarize totals items by kind. Unknown kinds are skipped.
func Summarize(items []BudgetItem) BudgetSummary {
	var s BudgetSummary
	for _, it := range items {
		total, err := it.Total()
		if err != nil {
			continue
		}
		switch it.Kind {
		case KindIncome:
			s.Income = s.Income.Add(total)
		case KindExpense:
			s.Expenses = s.Expenses.Add(total)
		}
		s.ItemCount++
	}
	return s
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
