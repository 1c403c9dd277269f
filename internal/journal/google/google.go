package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"familybudget/internal/journal"
)

const DefaultSheetName = "Journal"

// Sink appends one row per entry to a yearly tab of a Google Sheet, e.g.
// "2026 Journal".
type Sink struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

var _ journal.Sink = (*Sink)(nil)

// New builds a sink on an existing service.
func New(svc *gsheet.Service, spreadsheetID, sheetBase string) *Sink {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = DefaultSheetName
	}
	return &Sink{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}
}

// NewFromEnv creates a sink using Service Account credentials.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Journal")
func NewFromEnv(ctx context.Context) (*Sink, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME")), nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		var err error
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Record appends the entry below the last row of the year's tab and
// returns the updated range.
func (s *Sink) Record(ctx context.Context, e journal.Entry) (string, error) {
	if s.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	year := e.OccurredAt.Year()
	if e.OccurredAt.IsZero() {
		year = time.Now().Year()
	}
	sheet := yearPrefixedName(s.sheetBase, year)
	rng := fmt.Sprintf("%s!A:G", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{e.Row()}}

	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts
// with a year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
