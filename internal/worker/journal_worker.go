package worker

import (
	"context"
	"fmt"

	"familybudget/internal/amqp"
	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/journal"
	"familybudget/internal/log"
)

// JournalWorker handles item events from AMQP: it mirrors each one to the
// journal sink and then audits the user's aggregates.
type JournalWorker struct {
	sink    journal.Sink
	checker *DriftChecker
	logger  *log.Logger
}

func NewJournalWorker(sink journal.Sink, checker *DriftChecker, logger *log.Logger) *JournalWorker {
	return &JournalWorker{
		sink:    sink,
		checker: checker,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleItemEvent processes a single item event message. A journal failure
// is returned so the message is requeued; a drift finding is only logged.
func (w *JournalWorker) HandleItemEvent(ctx context.Context, msg *amqp.ItemEventMessage) error {
	w.logger.InfoContext(ctx, "Processing item event",
		log.FieldEvent, msg.Type,
		log.FieldItemID, msg.ItemID,
		log.FieldUserID, msg.UserID)

	entry := journal.Entry{
		Event:      msg.Type,
		ItemID:     msg.ItemID,
		UserID:     msg.UserID,
		Kind:       core.Kind(msg.Kind),
		Name:       msg.Name,
		Total:      msg.Total,
		OccurredAt: msg.Timestamp,
	}
	ref, err := w.sink.Record(ctx, entry)
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}

	w.logger.InfoContext(ctx, "Journal entry recorded",
		log.FieldItemID, msg.ItemID,
		"journal_ref", ref)

	if w.checker != nil {
		if _, err := w.checker.CheckUser(ctx, msg.UserID); err != nil && !apperrors.Is(err, apperrors.ErrConsistency) {
			w.logger.WarnContext(ctx, "Drift check failed",
				log.FieldUserID, msg.UserID,
				log.FieldError, err.Error())
		}
	}
	return nil
}
