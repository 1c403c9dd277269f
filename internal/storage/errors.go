package storage

import (
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
)

// mapError translates driver errors into domain errors. what names the
// record for not-found messages ("item", "budget").
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFoundf("%s not found", what)
	}
	if isBusy(err) {
		return apperrors.Concurrency(err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: budget_items.name_lower"):
		return apperrors.ValidationField("name", core.CodeNameAlreadyExist, "An item already exists with this name.")
	case strings.Contains(msg, "UNIQUE constraint failed: budgets.name_lower"):
		return apperrors.ValidationField("name", core.CodeNameAlreadyExist, "A budget already exists with this name.")
	case strings.Contains(msg, "UNIQUE constraint failed: users.email_lower"):
		return apperrors.ValidationField("email", "email_already_exist", "A user already exists with this email.")
	case strings.Contains(msg, "CHECK constraint failed") &&
		(strings.Contains(msg, "income_cents") || strings.Contains(msg, "expenses_cents")):
		return apperrors.Consistency("aggregate would become negative", err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return apperrors.Validationf("%s violates a constraint", what)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return apperrors.NotFoundf("%s references a missing record", what)
	}
	return err
}

// isBusy reports SQLITE_BUSY and SQLITE_LOCKED, including extended codes.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return strings.Contains(err.Error(), "database is locked")
}
