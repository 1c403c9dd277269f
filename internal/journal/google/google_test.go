package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"familybudget/internal/core"
	"familybudget/internal/journal"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	oldID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	defer os.Setenv("GOOGLE_SPREADSHEET_ID", oldID)
	os.Unsetenv("GOOGLE_SPREADSHEET_ID")

	_, err := NewFromEnv(context.Background())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := map[string]string{
		"Journal":      "2026 Journal",
		"2025 Journal": "2025 Journal",
		"  Journal  ":  "2026 Journal",
		"":             "",
	}
	for in, want := range tests {
		if got := yearPrefixedName(in, 2026); got != want {
			t.Errorf("yearPrefixedName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordWithoutService(t *testing.T) {
	s := &Sink{spreadsheetID: "id", sheetBase: "Journal"}
	if _, err := s.Record(context.Background(), journal.Entry{}); err == nil {
		t.Fatal("expected error with nil service")
	}
}

func TestRecordAppendsRow(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotOpt  string
		gotBody gsheet.ValueRange
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		gotOpt = r.URL.Query().Get("valueInputOption")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-id","updates":{"updatedRange":"'2026 Journal'!A2:G2"}}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	sink := New(svc, "sheet-id", "")
	ref, err := sink.Record(context.Background(), journal.Entry{
		Event:      "ITEM_CREATED",
		ItemID:     "i1",
		UserID:     "u1",
		Kind:       core.KindIncome,
		Name:       "Salary",
		Total:      core.MustParseMoney("2500.17"),
		OccurredAt: time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ref != "'2026 Journal'!A2:G2" {
		t.Errorf("ref = %q", ref)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(gotPath, "sheet-id") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotPath, "2026 Journal") {
		t.Errorf("path %q does not target the yearly tab", gotPath)
	}
	if gotOpt != "USER_ENTERED" {
		t.Errorf("valueInputOption = %q", gotOpt)
	}
	if len(gotBody.Values) != 1 || len(gotBody.Values[0]) != 7 || gotBody.Values[0][6] != "2500.17" {
		t.Errorf("body values = %v", gotBody.Values)
	}
}
