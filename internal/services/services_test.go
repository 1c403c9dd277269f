package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/ledger"
	"familybudget/internal/log"
	"familybudget/internal/storage"
)

type env struct {
	repo    *storage.SQLiteRepository
	ledger  *ledger.Ledger
	budgets *BudgetService
	users   *UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "services.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger := log.Discard()
	l := ledger.New(repo, ledger.NopPublisher{}, nil, logger, ledger.Config{})
	return &env{
		repo:    repo,
		ledger:  l,
		budgets: NewBudgetService(repo, logger, 10, 100),
		users:   NewUserService(repo, l.Locks(), 100*time.Millisecond, logger),
	}
}

func (e *env) register(t *testing.T, email string) core.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), email, "password123", "Ana", "Lima")
	require.NoError(t, err)
	return u
}

func (e *env) item(t *testing.T, userID, name, amount string, kind core.Kind) core.BudgetItem {
	t.Helper()
	it, err := e.ledger.CreateItem(context.Background(), userID, core.NewItem{
		Name: name, Amount: core.MustParseMoney(amount), Kind: kind,
	})
	require.NoError(t, err)
	return it
}

func (e *env) linked(t *testing.T, itemID string) bool {
	t.Helper()
	it, err := e.ledger.GetItem(context.Background(), itemID)
	require.NoError(t, err)
	return it.LinkedToBudget
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "Ana@Example.com")
	assert.NotEqual(t, "password123", u.PasswordHash)

	got, err := e.users.Authenticate(ctx, "ana@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = e.users.Authenticate(ctx, "ana@example.com", "wrong-password")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	_, err = e.users.Authenticate(ctx, "nobody@example.com", "password123")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.register(t, "ana@example.com")

	tests := []struct {
		name, email, password, field string
	}{
		{"bad email", "not-an-email", "password123", "email"},
		{"weak password", "bo@example.com", "short", "password"},
		{"duplicate email", "ANA@example.com", "password123", "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.users.Register(ctx, tt.email, tt.password, "", "")
			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperrors.CodeValidation, appErr.Code)
			assert.Contains(t, appErr.Details.(apperrors.FieldErrors), tt.field)
		})
	}
}

func TestProfileReadsAggregates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "ana@example.com")
	e.item(t, u.ID, "Salary", "2500.17", core.KindIncome)
	e.item(t, u.ID, "Rent", "800.00", core.KindExpense)

	p, err := e.users.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "2500.17", p.User.Income.String())
	assert.Equal(t, "800.00", p.User.Expenses.String())
	assert.Equal(t, "1700.17", p.Balance.String())
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "ana@example.com")
	it := e.item(t, u.ID, "Bread", "2.00", core.KindExpense)
	b, err := e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "Food", ItemIDs: []string{it.ID}})
	require.NoError(t, err)

	require.NoError(t, e.users.Delete(ctx, u.ID))

	_, err = e.users.Profile(ctx, u.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.ledger.GetItem(ctx, it.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = e.repo.Queries().GetBudget(ctx, b.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	// the name is free again
	other := e.register(t, "bo@example.com")
	e.item(t, other.ID, "Bread", "2.00", core.KindExpense)
}

func TestDeleteUserGivesUpOnHeldLock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "ana@example.com")

	unlock, err := e.ledger.Locks().Lock(ctx, u.ID)
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	err = e.users.Delete(ctx, u.ID)
	assert.Equal(t, apperrors.CodeConcurrency, apperrors.CodeOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = e.users.Profile(ctx, u.ID)
	require.NoError(t, err, "user must survive a timed-out delete")
}

func TestBudgetMembershipMaintainsLinkedFlag(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "ana@example.com")
	bread := e.item(t, u.ID, "Bread", "2.00", core.KindExpense)
	milk := e.item(t, u.ID, "Milk", "1.50", core.KindExpense)

	food, err := e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "Food", ItemIDs: []string{bread.ID}})
	require.NoError(t, err)
	assert.Equal(t, core.CategoryGeneral, food.Category)
	assert.Equal(t, []string{bread.ID}, food.ItemIDs)
	assert.True(t, e.linked(t, bread.ID))
	assert.False(t, e.linked(t, milk.ID))

	weekly, err := e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "Weekly", ItemIDs: []string{bread.ID}})
	require.NoError(t, err)

	_, err = e.budgets.AddItem(ctx, u.ID, food.ID, milk.ID)
	require.NoError(t, err)
	assert.True(t, e.linked(t, milk.ID))

	_, err = e.budgets.RemoveItem(ctx, u.ID, food.ID, bread.ID)
	require.NoError(t, err)
	assert.True(t, e.linked(t, bread.ID), "still in the weekly budget")

	require.NoError(t, e.budgets.Delete(ctx, u.ID, weekly.ID))
	assert.False(t, e.linked(t, bread.ID))

	empty := []string{}
	_, err = e.budgets.Update(ctx, u.ID, food.ID, core.BudgetPatch{ItemIDs: &empty})
	require.NoError(t, err)
	assert.False(t, e.linked(t, milk.ID))
}

func TestBudgetsNeverTouchAggregates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "ana@example.com")
	it := e.item(t, u.ID, "Bread", "2.00", core.KindExpense)

	b, err := e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "Food", ItemIDs: []string{it.ID}})
	require.NoError(t, err)
	require.NoError(t, e.budgets.Delete(ctx, u.ID, b.ID))

	p, err := e.users.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.00", p.User.Expenses.String())
}

func TestBudgetNameRules(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "ana@example.com")

	_, err := e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "Food"})
	require.NoError(t, err)

	_, err = e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "FOOD"})
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, core.CodeNameAlreadyExist, appErr.Details.(apperrors.FieldErrors)["name"].Code)

	_, err = e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "F"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = e.budgets.Create(ctx, u.ID, core.NewBudget{Name: "Trips", Category: "YACHTS"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestBudgetOwnership(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ana := e.register(t, "ana@example.com")
	bo := e.register(t, "bo@example.com")
	anaItem := e.item(t, ana.ID, "Bread", "2.00", core.KindExpense)

	_, err := e.budgets.Create(ctx, bo.ID, core.NewBudget{Name: "Steal", ItemIDs: []string{anaItem.ID}})
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	_, err = e.budgets.Create(ctx, bo.ID, core.NewBudget{Name: "Ghost", ItemIDs: []string{"missing"}})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	b, err := e.budgets.Create(ctx, ana.ID, core.NewBudget{Name: "Food"})
	require.NoError(t, err)
	_, err = e.budgets.Get(ctx, bo.ID, b.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, errors.Is(e.budgets.Delete(ctx, bo.ID, b.ID), apperrors.ErrNotFound))
}

func TestBudgetSummary(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.register(t, "ana@example.com")
	salary := e.item(t, u.ID, "Salary", "100.00", core.KindIncome)
	bread, err := e.ledger.CreateItem(ctx, u.ID, core.NewItem{
		Name: "Bread", Amount: core.MustParseMoney("2.50"), Quantity: func() *int { n := 4; return &n }(),
	})
	require.NoError(t, err)

	b, err := e.budgets.Create(ctx, u.ID, core.NewBudget{
		Name: "Month", Category: core.CategoryFood, ItemIDs: []string{salary.ID, bread.ID, bread.ID},
	})
	require.NoError(t, err)
	assert.Len(t, b.ItemIDs, 2)

	sum, err := e.budgets.Summary(ctx, u.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", sum.Income.String())
	assert.Equal(t, "10.00", sum.Expenses.String())
	assert.Equal(t, 2, sum.ItemCount)

	list, total, err := e.budgets.List(ctx, u.ID, core.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}
