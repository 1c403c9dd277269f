package worker

import (
	"context"
	"errors"
	"fmt"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/ledger"
	"familybudget/internal/log"
	"familybudget/internal/storage"
)

// Drift compares a user's stored aggregates with the sum of their items.
type Drift struct {
	UserID           string
	StoredIncome     core.Money
	StoredExpenses   core.Money
	ComputedIncome   core.Money
	ComputedExpenses core.Money
}

func (d Drift) Consistent() bool {
	return d.StoredIncome == d.ComputedIncome && d.StoredExpenses == d.ComputedExpenses
}

// DriftChecker audits aggregates. It only reads; a mismatch is reported
// and counted, never repaired.
type DriftChecker struct {
	storage *storage.SQLiteRepository
	metrics *ledger.Metrics
	logger  *log.Logger
}

func NewDriftChecker(storage *storage.SQLiteRepository, metrics *ledger.Metrics, logger *log.Logger) *DriftChecker {
	if metrics == nil {
		metrics = ledger.NewMetrics(nil)
	}
	return &DriftChecker{
		storage: storage,
		metrics: metrics,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// CheckUser reads the user row and the item sums in one read-only
// transaction so both come from the same snapshot without blocking
// writers. A deleted user is not an error.
func (c *DriftChecker) CheckUser(ctx context.Context, userID string) (Drift, error) {
	d := Drift{UserID: userID}
	err := c.storage.WithReadTx(ctx, func(q *storage.Queries) error {
		u, err := q.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		d.StoredIncome, d.StoredExpenses = u.Income, u.Expenses
		d.ComputedIncome, d.ComputedExpenses, err = q.SumItems(ctx, userID)
		return err
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return Drift{UserID: userID}, nil
	}
	if err != nil {
		return Drift{}, fmt.Errorf("check drift for %s: %w", userID, err)
	}

	if !d.Consistent() {
		c.metrics.DriftDetected.Inc()
		c.metrics.ConsistencyFaults.Inc()
		c.logger.ErrorContext(ctx, "Aggregate drift detected",
			log.FieldUserID, userID,
			log.FieldErrorType, log.ErrorTypeConsistency,
			"stored_income", d.StoredIncome.String(),
			"computed_income", d.ComputedIncome.String(),
			"stored_expenses", d.StoredExpenses.String(),
			"computed_expenses", d.ComputedExpenses.String())
		return d, apperrors.Consistency("aggregates differ from item totals", nil)
	}
	c.logger.DebugContext(ctx, "Aggregates consistent", log.FieldUserID, userID)
	return d, nil
}
