package http

import (
	"time"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/services"
)

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Income    core.Money `json:"income"`
	Expenses  core.Money `json:"expenses"`
	Balance   core.Money `json:"balance"`
	CreatedAt time.Time  `json:"created_at"`
}

func newUserResponse(u core.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Income:    u.Income,
		Expenses:  u.Expenses,
		Balance:   u.Balance(),
		CreatedAt: u.CreatedAt,
	}
}

func newProfileResponse(p services.Profile) userResponse {
	r := newUserResponse(p.User)
	r.Balance = p.Balance
	return r
}

// itemRequest serves create, PUT and PATCH. Absent fields stay nil.
type itemRequest struct {
	Name     *string     `json:"name" validate:"omitempty,min=1"`
	Amount   *core.Money `json:"amount"`
	Type     *string     `json:"type"`
	Quantity *int        `json:"quantity"`
}

// requireFull reports the fields a create or PUT must carry.
func (r itemRequest) requireFull() error {
	fe := apperrors.FieldErrors{}
	if r.Name == nil {
		fe.Add("name", core.CodeRequired, "This field is required.")
	}
	if r.Amount == nil {
		fe.Add("amount", core.CodeRequired, "This field is required.")
	}
	return fe.Err()
}

func (r itemRequest) kind() (*core.Kind, error) {
	if r.Type == nil {
		return nil, nil
	}
	k, err := core.ParseKind(*r.Type)
	if err != nil {
		return nil, apperrors.ValidationField("type", core.CodeInvalidChoice, err.Error())
	}
	return &k, nil
}

func (r itemRequest) toNewItem() (core.NewItem, error) {
	if err := r.requireFull(); err != nil {
		return core.NewItem{}, err
	}
	k, err := r.kind()
	if err != nil {
		return core.NewItem{}, err
	}
	in := core.NewItem{Name: *r.Name, Amount: *r.Amount, Quantity: r.Quantity}
	if k != nil {
		in.Kind = *k
	}
	return in, nil
}

func (r itemRequest) toPatch() (core.ItemPatch, error) {
	k, err := r.kind()
	if err != nil {
		return core.ItemPatch{}, err
	}
	return core.ItemPatch{Name: r.Name, Amount: r.Amount, Quantity: r.Quantity, Kind: k}, nil
}

type itemResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Type           core.Kind  `json:"type"`
	Amount         core.Money `json:"amount"`
	Quantity       int        `json:"quantity"`
	Total          core.Money `json:"total"`
	LinkedToBudget bool       `json:"linked_to_budget"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func newItemResponse(it core.BudgetItem) itemResponse {
	total, _ := it.Total()
	return itemResponse{
		ID:             it.ID,
		Name:           it.Name,
		Type:           it.Kind,
		Amount:         it.Amount,
		Quantity:       it.Quantity,
		Total:          total,
		LinkedToBudget: it.LinkedToBudget,
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}
}

func newItemResponses(items []core.BudgetItem) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, newItemResponse(it))
	}
	return out
}

type budgetRequest struct {
	Name     *string   `json:"name" validate:"omitempty,min=1"`
	Category *string   `json:"category"`
	Items    *[]string `json:"items" validate:"omitempty,max=500,dive,required"`
}

func (r budgetRequest) category() (*core.Category, error) {
	if r.Category == nil {
		return nil, nil
	}
	c, err := core.ParseCategory(*r.Category)
	if err != nil {
		return nil, apperrors.ValidationField("category", core.CodeInvalidChoice, err.Error())
	}
	return &c, nil
}

func (r budgetRequest) toNewBudget() (core.NewBudget, error) {
	if r.Name == nil {
		return core.NewBudget{}, apperrors.ValidationField("name", core.CodeRequired, "This field is required.")
	}
	c, err := r.category()
	if err != nil {
		return core.NewBudget{}, err
	}
	in := core.NewBudget{Name: *r.Name}
	if c != nil {
		in.Category = *c
	}
	if r.Items != nil {
		in.ItemIDs = *r.Items
	}
	return in, nil
}

func (r budgetRequest) toPatch() (core.BudgetPatch, error) {
	c, err := r.category()
	if err != nil {
		return core.BudgetPatch{}, err
	}
	return core.BudgetPatch{Name: r.Name, Category: c, ItemIDs: r.Items}, nil
}

type budgetItemRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

type budgetResponse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Category  core.Category `json:"category"`
	Items     []string      `json:"items"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func newBudgetResponse(b core.Budget) budgetResponse {
	items := b.ItemIDs
	if items == nil {
		items = []string{}
	}
	return budgetResponse{
		ID:        b.ID,
		Name:      b.Name,
		Category:  b.Category,
		Items:     items,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

type summaryResponse struct {
	Income    core.Money `json:"income"`
	Expenses  core.Money `json:"expenses"`
	Balance   core.Money `json:"balance"`
	ItemCount int        `json:"item_count"`
}

func newSummaryResponse(s core.BudgetSummary) summaryResponse {
	return summaryResponse{
		Income:    s.Income,
		Expenses:  s.Expenses,
		Balance:   s.Income.Sub(s.Expenses),
		ItemCount: s.ItemCount,
	}
}

type budgetDetailResponse struct {
	budgetResponse
	ItemDetails []itemResponse  `json:"item_details"`
	Summary     summaryResponse `json:"summary"`
}

type listResponse[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}
