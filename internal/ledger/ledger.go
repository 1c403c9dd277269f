// Package ledger owns every write to budget items and keeps each user's
// income and expenses aggregates in step with those writes.
//
// A mutation validates its input, takes the owner's lock, then in one
// transaction writes the item and applies the aggregate delta. Events are
// published only after commit.
package ledger

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

const (
	DefaultLockWait    = 5 * time.Second
	DefaultPageSize    = 50
	DefaultMaxPageSize = 500
)

type Config struct {
	LockWait    time.Duration
	PageSize    int
	MaxPageSize int
}

type Ledger struct {
	repo       *storage.SQLiteRepository
	locks      *UserLocks
	maintainer *Maintainer
	publisher  EventPublisher
	metrics    *Metrics
	logger     *log.Logger
	events     *log.StructuredLogger
	cfg        Config
	now        func() time.Time
}

// New wires a ledger over repo. A nil publisher drops events and nil
// metrics are created unregistered.
func New(repo *storage.SQLiteRepository, publisher EventPublisher, metrics *Metrics, logger *log.Logger, cfg Config) *Ledger {
	if publisher == nil {
		logger.Warn("No event publisher configured, item events will not leave the process")
		publisher = NopPublisher{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultLockWait
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = max(DefaultMaxPageSize, cfg.PageSize)
	}
	l := logger.WithComponent(log.ComponentLedger)
	return &Ledger{
		repo:       repo,
		locks:      NewUserLocks(),
		maintainer: NewMaintainer(logger, metrics),
		publisher:  publisher,
		metrics:    metrics,
		logger:     l,
		events:     log.NewStructuredLogger(l),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateItem stores a new item for userID and adds its total to the
// owner's aggregate. Names are unique across all items, ignoring case.
func (l *Ledger) CreateItem(ctx context.Context, userID string, in core.NewItem) (core.BudgetItem, error) {
	item := in.Build(userID)
	if err := item.Validate(); err != nil {
		return core.BudgetItem{}, err
	}

	unlock, err := l.lockUser(ctx, userID)
	if err != nil {
		return core.BudgetItem{}, err
	}
	defer unlock()

	now := l.now()
	item.ID = uuid.NewString()
	item.CreatedAt = now
	item.UpdatedAt = now

	err = l.repo.WithTx(ctx, func(q *storage.Queries) error {
		if _, err := q.GetUser(ctx, userID); err != nil {
			return err
		}
		if err := checkItemName(ctx, q, item.Name, ""); err != nil {
			return err
		}
		if err := q.InsertItem(ctx, item); err != nil {
			return err
		}
		return l.maintainer.OnItemCreated(ctx, q, item)
	})
	if err != nil {
		return core.BudgetItem{}, fmt.Errorf("create item: %w", err)
	}

	unlock()
	l.publish(ctx, EventItemCreated, item)
	return item, nil
}

// UpdateItem applies a partial update. When the total or kind changes the
// old contribution is removed and the new one added in the same
// transaction; a rename leaves the aggregates untouched.
func (l *Ledger) UpdateItem(ctx context.Context, itemID string, patch core.ItemPatch) (core.BudgetItem, error) {
	current, err := l.repo.Queries().GetItem(ctx, itemID)
	if err != nil {
		return core.BudgetItem{}, err
	}
	if patch.Empty() {
		return current, nil
	}
	if err := patch.Apply(current).Validate(); err != nil {
		return core.BudgetItem{}, err
	}

	unlock, err := l.lockUser(ctx, current.UserID)
	if err != nil {
		return core.BudgetItem{}, err
	}
	defer unlock()

	var updated core.BudgetItem
	err = l.repo.WithTx(ctx, func(q *storage.Queries) error {
		before, err := q.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		after := patch.Apply(before)
		after.UpdatedAt = l.now()
		if err := after.Validate(); err != nil {
			return err
		}
		if patch.Name != nil {
			if err := checkItemName(ctx, q, after.Name, after.ID); err != nil {
				return err
			}
		}
		if err := q.UpdateItem(ctx, after); err != nil {
			return err
		}
		changed, err := contributionChanged(before, after)
		if err != nil {
			return apperrors.Consistency("item has no aggregate", err)
		}
		if changed {
			if err := l.maintainer.OnItemDeleted(ctx, q, before); err != nil {
				return err
			}
			if err := l.maintainer.OnItemCreated(ctx, q, after); err != nil {
				return err
			}
		}
		updated = after
		return nil
	})
	if err != nil {
		return core.BudgetItem{}, fmt.Errorf("update item: %w", err)
	}

	unlock()
	l.publish(ctx, EventItemUpdated, updated)
	return updated, nil
}

// DeleteItem removes the item and subtracts the total computed from its
// last persisted state.
func (l *Ledger) DeleteItem(ctx context.Context, itemID string) error {
	current, err := l.repo.Queries().GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	unlock, err := l.lockUser(ctx, current.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	var deleted core.BudgetItem
	err = l.repo.WithTx(ctx, func(q *storage.Queries) error {
		item, err := q.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := l.maintainer.OnItemDeleted(ctx, q, item); err != nil {
			return err
		}
		if err := q.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		deleted = item
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	unlock()
	l.publish(ctx, EventItemDeleted, deleted)
	return nil
}

func (l *Ledger) GetItem(ctx context.Context, itemID string) (core.BudgetItem, error) {
	return l.repo.Queries().GetItem(ctx, itemID)
}

// GetOwnedItem returns the item only when userID owns it. Items of other
// users are reported as not found.
func (l *Ledger) GetOwnedItem(ctx context.Context, userID, itemID string) (core.BudgetItem, error) {
	item, err := l.GetItem(ctx, itemID)
	if err != nil {
		return core.BudgetItem{}, err
	}
	if item.UserID != userID {
		return core.BudgetItem{}, apperrors.NotFound("item not found")
	}
	return item, nil
}

// ListItems returns one page of items matching f and the total match count.
func (l *Ledger) ListItems(ctx context.Context, f core.ItemFilter) ([]core.BudgetItem, int, error) {
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.Cents > f.MaxAmount.Cents {
		return nil, 0, apperrors.ValidationField("min_amount", core.CodeInvalidAmount, "must not exceed max_amount")
	}
	f.Page = f.Page.Normalize(l.cfg.PageSize, l.cfg.MaxPageSize)
	return l.repo.Queries().ListItems(ctx, f)
}

// Total is the item's contribution to its owner's aggregate.
func Total(item core.BudgetItem) (core.Money, error) {
	return item.Total()
}

// Locks exposes the per-user locks so other writers to the same
// aggregates can serialize with the ledger.
func (l *Ledger) Locks() *UserLocks {
	return l.locks
}

func (l *Ledger) lockUser(ctx context.Context, userID string) (func(), error) {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.LockWait)
	defer cancel()

	unlock, err := l.locks.Lock(waitCtx, userID)
	l.metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		l.metrics.LockTimeouts.Inc()
		l.logger.WarnContext(ctx, "User lock not acquired",
			log.FieldUserID, userID,
			log.FieldErrorType, log.ErrorTypeConcurrency,
			log.FieldError, err.Error())
		return nil, err
	}
	return unlock, nil
}

// publish runs after the user lock is released; a slow broker must not
// hold up other writers.
func (l *Ledger) publish(ctx context.Context, typ EventType, item core.BudgetItem) {
	total, _ := item.Total()
	l.metrics.ItemEvents.WithLabelValues(string(typ), string(item.Kind)).Inc()
	l.events.LogItemEvent(ctx, string(typ), item.ID, item.UserID, item.Name, string(item.Kind), total.String())

	ev := ItemEvent{Type: typ, Item: item, Total: total, OccurredAt: l.now()}
	if err := l.publisher.PublishItemEvent(ctx, ev); err != nil {
		l.logger.WarnContext(ctx, "Failed to publish item event",
			log.FieldEvent, string(typ),
			log.FieldItemID, item.ID,
			log.FieldError, err.Error())
	}
}

func checkItemName(ctx context.Context, q *storage.Queries, name, excludeID string) error {
	taken, err := q.ItemNameTaken(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperrors.ValidationField("name", core.CodeNameAlreadyExist, "An item already exists with this name.")
	}
	return nil
}

func contributionChanged(before, after core.BudgetItem) (bool, error) {
	if before.Kind != after.Kind {
		return true, nil
	}
	bt, err := before.Total()
	if err != nil {
		return false, err
	}
	at, err := after.Total()
	if err != nil {
		return false, err
	}
	return bt != at, nil
}
