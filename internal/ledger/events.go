package ledger

import (
	"context"
	"time"

	"familybudget/internal/core"
)

// EventType names an item lifecycle change.
type EventType string

const (
	EventItemCreated EventType = "ITEM_CREATED"
	EventItemUpdated EventType = "ITEM_UPDATED"
	EventItemDeleted EventType = "ITEM_DELETED"
)

// ItemEvent describes a committed change. Item is the state after the
// change, or the last state for a deletion.
type ItemEvent struct {
	Type       EventType
	Item       core.BudgetItem
	Total      core.Money
	OccurredAt time.Time
}

// EventPublisher receives events after commit. Failures are logged and
// never undo the change.
type EventPublisher interface {
	PublishItemEvent(ctx context.Context, ev ItemEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishItemEvent(context.Context, ItemEvent) error { return nil }
