package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"familybudget/internal/core"
	"familybudget/internal/journal"
)

func TestRecordKeepsOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Record(ctx, journal.Entry{Event: "ITEM_CREATED", ItemID: "a"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q", ref)
	}
	if _, err := s.Record(ctx, journal.Entry{Event: "ITEM_DELETED", ItemID: "a"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got := s.Entries()
	if len(got) != 2 || got[0].Event != "ITEM_CREATED" || got[1].Event != "ITEM_DELETED" {
		t.Fatalf("unexpected entries %+v", got)
	}

	got[0].Event = "changed"
	if s.Entries()[0].Event != "ITEM_CREATED" {
		t.Error("Entries must return a copy")
	}
}

func TestConcurrentRecord(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Record(context.Background(), journal.Entry{Event: "ITEM_CREATED"})
		}()
	}
	wg.Wait()
	if n := len(s.Entries()); n != 50 {
		t.Errorf("entries = %d, want 50", n)
	}
}

func TestEntryRow(t *testing.T) {
	e := journal.Entry{
		Event:      "ITEM_CREATED",
		ItemID:     "i1",
		UserID:     "u1",
		Kind:       core.KindExpense,
		Name:       "Bread",
		Total:      core.MustParseMoney("117.25"),
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	row := e.Row()
	want := []any{"2026-03-01T10:00:00Z", "ITEM_CREATED", "u1", "i1", "EXPENSE", "Bread", "117.25"}
	if len(row) != len(want) {
		t.Fatalf("row = %v", row)
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("col %d = %v, want %v", i, row[i], want[i])
		}
	}
}
