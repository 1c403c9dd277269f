// Package journal mirrors committed item events to an external,
// append-only record. It is a notification target only; nothing reads the
// journal back to compute aggregates.
package journal

import (
	"context"
	"time"

	"familybudget/internal/core"
)

// Entry is one journal line.
type Entry struct {
	Event      string
	ItemID     string
	UserID     string
	Kind       core.Kind
	Name       string
	Total      core.Money
	OccurredAt time.Time
}

// Sink records entries. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Entry) (ref string, err error)
}

// Row renders the entry as spreadsheet cells, oldest columns first.
func (e Entry) Row() []any {
	return []any{
		e.OccurredAt.UTC().Format(time.RFC3339),
		e.Event,
		e.UserID,
		e.ItemID,
		string(e.Kind),
		e.Name,
		e.Total.String(),
	}
}
