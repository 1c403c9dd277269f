package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/log"
	"familybudget/internal/storage"
)

// BudgetService groups a user's items into named budgets. It never writes
// the user aggregates; those belong to the ledger.
type BudgetService struct {
	storage     *storage.SQLiteRepository
	logger      *log.Logger
	pageSize    int
	maxPageSize int
	now         func() time.Time
}

func NewBudgetService(storage *storage.SQLiteRepository, logger *log.Logger, pageSize, maxPageSize int) *BudgetService {
	if pageSize <= 0 {
		pageSize = 50
	}
	if maxPageSize < pageSize {
		maxPageSize = max(500, pageSize)
	}
	return &BudgetService{
		storage:     storage,
		logger:      logger.WithComponent(log.ComponentBudget),
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// BudgetDetail is a budget with its member items and their totals.
type BudgetDetail struct {
	Budget  core.Budget
	Items   []core.BudgetItem
	Summary core.BudgetSummary
}

func (s *BudgetService) Create(ctx context.Context, userID string, in core.NewBudget) (core.Budget, error) {
	b := in.Build(userID)
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	now := s.now()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now

	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if err := checkBudgetName(ctx, q, b.Name, ""); err != nil {
			return err
		}
		if err := checkItemsOwned(ctx, q, userID, b.ItemIDs); err != nil {
			return err
		}
		if err := q.InsertBudget(ctx, b); err != nil {
			return err
		}
		changed, err := q.SetBudgetItems(ctx, b.ID, b.ItemIDs)
		if err != nil {
			return err
		}
		return q.RefreshLinkedFlags(ctx, changed)
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	s.logger.InfoContext(ctx, "Budget created",
		log.FieldBudgetID, b.ID,
		log.FieldUserID, userID,
		"items", len(b.ItemIDs))
	return s.storage.Queries().GetBudget(ctx, b.ID)
}

// Get returns the budget when userID owns it; other users' budgets are
// reported as not found.
func (s *BudgetService) Get(ctx context.Context, userID, budgetID string) (core.Budget, error) {
	return ownedBudget(ctx, s.storage.Queries(), userID, budgetID)
}

// Detail returns the budget with its member items and summary.
func (s *BudgetService) Detail(ctx context.Context, userID, budgetID string) (BudgetDetail, error) {
	q := s.storage.Queries()
	b, err := ownedBudget(ctx, q, userID, budgetID)
	if err != nil {
		return BudgetDetail{}, err
	}
	items, err := q.BudgetItems(ctx, budgetID)
	if err != nil {
		return BudgetDetail{}, err
	}
	return BudgetDetail{Budget: b, Items: items, Summary: core.Summarize(items)}, nil
}

func (s *BudgetService) List(ctx context.Context, userID string, page core.Page) ([]core.Budget, int, error) {
	return s.storage.Queries().ListBudgets(ctx, userID, page.Normalize(s.pageSize, s.maxPageSize))
}

func (s *BudgetService) Update(ctx context.Context, userID, budgetID string, patch core.BudgetPatch) (core.Budget, error) {
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		before, err := ownedBudget(ctx, q, userID, budgetID)
		if err != nil {
			return err
		}
		after := patch.Apply(before)
		after.UpdatedAt = s.now()
		if err := after.Validate(); err != nil {
			return err
		}
		if patch.Name != nil {
			if err := checkBudgetName(ctx, q, after.Name, after.ID); err != nil {
				return err
			}
		}
		if err := q.UpdateBudget(ctx, after); err != nil {
			return err
		}
		if patch.ItemIDs == nil {
			return nil
		}
		if err := checkItemsOwned(ctx, q, userID, after.ItemIDs); err != nil {
			return err
		}
		changed, err := q.SetBudgetItems(ctx, after.ID, after.ItemIDs)
		if err != nil {
			return err
		}
		return q.RefreshLinkedFlags(ctx, changed)
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	return s.storage.Queries().GetBudget(ctx, budgetID)
}

// Delete removes the budget; its items stay and lose the linked flag when
// no other budget holds them.
func (s *BudgetService) Delete(ctx context.Context, userID, budgetID string) error {
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		b, err := ownedBudget(ctx, q, userID, budgetID)
		if err != nil {
			return err
		}
		if err := q.DeleteBudget(ctx, budgetID); err != nil {
			return err
		}
		return q.RefreshLinkedFlags(ctx, b.ItemIDs)
	})
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	s.logger.InfoContext(ctx, "Budget deleted", log.FieldBudgetID, budgetID, log.FieldUserID, userID)
	return nil
}

func (s *BudgetService) AddItem(ctx context.Context, userID, budgetID, itemID string) (core.Budget, error) {
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := ownedBudget(ctx, q, userID, budgetID); err != nil {
			return err
		}
		if err := checkItemsOwned(ctx, q, userID, []string{itemID}); err != nil {
			return err
		}
		if err := q.AddBudgetItem(ctx, budgetID, itemID); err != nil {
			return err
		}
		return q.RefreshLinkedFlags(ctx, []string{itemID})
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("add budget item: %w", err)
	}
	return s.storage.Queries().GetBudget(ctx, budgetID)
}

func (s *BudgetService) RemoveItem(ctx context.Context, userID, budgetID, itemID string) (core.Budget, error) {
	err := s.storage.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := ownedBudget(ctx, q, userID, budgetID); err != nil {
			return err
		}
		if err := q.RemoveBudgetItem(ctx, budgetID, itemID); err != nil {
			return err
		}
		return q.RefreshLinkedFlags(ctx, []string{itemID})
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("remove budget item: %w", err)
	}
	return s.storage.Queries().GetBudget(ctx, budgetID)
}

// Summary totals the budget's member items. It is computed on read and
// never stored.
func (s *BudgetService) Summary(ctx context.Context, userID, budgetID string) (core.BudgetSummary, error) {
	d, err := s.Detail(ctx, userID, budgetID)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	return d.Summary, nil
}

func ownedBudget(ctx context.Context, q *storage.Queries, userID, budgetID string) (core.Budget, error) {
	b, err := q.GetBudget(ctx, budgetID)
	if err != nil {
		return core.Budget{}, err
	}
	if b.UserID != userID {
		return core.Budget{}, apperrors.NotFound("budget not found")
	}
	return b, nil
}

func checkBudgetName(ctx context.Context, q *storage.Queries, name, excludeID string) error {
	taken, err := q.BudgetNameTaken(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperrors.ValidationField("name", core.CodeNameAlreadyExist, "A budget already exists with this name.")
	}
	return nil
}

// checkItemsOwned fails with NOT_FOUND for a missing item and FORBIDDEN for
// an item of another user.
func checkItemsOwned(ctx context.Context, q *storage.Queries, userID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	items, err := q.GetItemsByIDs(ctx, itemIDs)
	if err != nil {
		return err
	}
	found := make(map[string]core.BudgetItem, len(items))
	for _, it := range items {
		found[it.ID] = it
	}
	for _, id := range itemIDs {
		it, ok := found[id]
		if !ok {
			return apperrors.NotFoundf("item %s not found", id)
		}
		if it.UserID != userID {
			return apperrors.Forbidden("item " + id + " belongs to another user")
		}
	}
	return nil
}
