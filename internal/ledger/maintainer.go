package ledger

import (
	"context"
	"fmt"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/log"
)

// AggregateStore applies a signed delta to one of a user's aggregates and
// returns the new value. *storage.Queries implements it.
type AggregateStore interface {
	AddToAggregate(ctx context.Context, userID string, kind core.Kind, delta core.Money) (core.Money, error)
}

// Maintainer keeps User.Income and User.Expenses equal to the sum of the
// user's items. It must run inside the transaction that writes the item
// and while the owner's lock is held.
type Maintainer struct {
	logger  *log.Logger
	metrics *Metrics
}

func NewMaintainer(logger *log.Logger, metrics *Metrics) *Maintainer {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Maintainer{
		logger:  logger.WithComponent(log.ComponentAggregate),
		metrics: metrics,
	}
}

// OnItemCreated adds the item's total to the owner's aggregate for its kind.
func (m *Maintainer) OnItemCreated(ctx context.Context, store AggregateStore, item core.BudgetItem) error {
	return m.apply(ctx, store, item, 1)
}

// OnItemDeleted subtracts the item's total, computed from its last
// persisted state.
func (m *Maintainer) OnItemDeleted(ctx context.Context, store AggregateStore, item core.BudgetItem) error {
	return m.apply(ctx, store, item, -1)
}

func (m *Maintainer) apply(ctx context.Context, store AggregateStore, item core.BudgetItem, sign int) error {
	total, err := item.Total()
	if err != nil {
		return m.fault(ctx, item, "item has no aggregate", err)
	}
	delta := total
	direction := "add"
	if sign < 0 {
		delta = total.Neg()
		direction = "subtract"
	}

	var after core.Money
	switch item.Kind {
	case core.KindIncome:
		after, err = store.AddToAggregate(ctx, item.UserID, core.KindIncome, delta)
	case core.KindExpense:
		after, err = store.AddToAggregate(ctx, item.UserID, core.KindExpense, delta)
	default:
		return m.fault(ctx, item, "item has no aggregate", core.ErrUnknownKind)
	}
	if err != nil {
		if apperrors.Is(err, apperrors.ErrConsistency) {
			m.metrics.ConsistencyFaults.Inc()
			m.logger.ErrorContext(ctx, "Aggregate update refused",
				log.NewFields().
					WithAggregate(item.UserID, string(item.Kind), delta.Cents, 0).
					WithError(err).
					WithErrorType(log.ErrorTypeConsistency).
					ToSlice()...)
		}
		return fmt.Errorf("apply %s delta: %w", item.Kind, err)
	}
	if after.IsNegative() {
		return m.fault(ctx, item, "aggregate went negative", nil)
	}

	m.metrics.AggregateDelta.WithLabelValues(string(item.Kind), direction).Inc()
	m.logger.InfoContext(ctx, "Aggregate updated",
		log.NewFields().
			WithAggregate(item.UserID, string(item.Kind), delta.Cents, after.Cents).
			WithOperation(log.OpApply).
			ToSlice()...)
	return nil
}

func (m *Maintainer) fault(ctx context.Context, item core.BudgetItem, msg string, cause error) error {
	m.metrics.ConsistencyFaults.Inc()
	m.logger.ErrorContext(ctx, "Aggregate consistency fault",
		log.FieldUserID, item.UserID,
		log.FieldItemID, item.ID,
		log.FieldKind, string(item.Kind),
		log.FieldErrorType, log.ErrorTypeConsistency,
		"reason", msg)
	return apperrors.Consistency(msg, cause)
}
