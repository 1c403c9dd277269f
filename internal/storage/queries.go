package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement the application runs. A Queries bound to
// a transaction comes from SQLiteRepository.WithTx.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, email, first_name, last_name, password_hash, income_cents, expenses_cents, created_at, updated_at`

func scanUser(s scanner) (core.User, error) {
	var (
		u                  core.User
		created, updated   string
		incomeC, expensesC int64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&incomeC, &expensesC, &created, &updated); err != nil {
		return core.User{}, err
	}
	u.Income = core.Money{Cents: incomeC}
	u.Expenses = core.Money{Cents: expensesC}
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return u, nil
}

func (q *Queries) CreateUser(ctx context.Context, u core.User) error {
	now := formatTime(u.CreatedAt)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, email_lower, first_name, last_name, password_hash,
		                   income_cents, expenses_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		u.ID, u.Email, strings.ToLower(u.Email), u.FirstName, u.LastName, u.PasswordHash, now, now)
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err, "user"))
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (core.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", mapError(err, "user"))
	}
	return u, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email_lower = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", mapError(err, "user"))
	}
	return u, nil
}

// DeleteUser removes the user; items, budgets and memberships cascade.
func (q *Queries) DeleteUser(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", mapError(err, "user"))
	}
	return requireAffected(res, "user")
}

// AddToAggregate adds delta (negative to subtract) to the user's income or
// expenses in a single statement and returns the new value. It is the only
// statement in the codebase that writes income_cents or expenses_cents.
func (q *Queries) AddToAggregate(ctx context.Context, userID string, kind core.Kind, delta core.Money) (core.Money, error) {
	var column string
	switch kind {
	case core.KindIncome:
		column = "income_cents"
	case core.KindExpense:
		column = "expenses_cents"
	default:
		return core.Money{}, apperrors.Consistency("no aggregate for kind "+string(kind), core.ErrUnknownKind)
	}

	var after int64
	err := q.db.QueryRowContext(ctx,
		`UPDATE users SET `+column+` = `+column+` + ?, updated_at = ? WHERE id = ? RETURNING `+column,
		delta.Cents, formatTime(time.Now()), userID).Scan(&after)
	if err != nil {
		return core.Money{}, fmt.Errorf("update %s: %w", column, mapError(err, "user"))
	}
	return core.Money{Cents: after}, nil
}

// ListActiveUserIDs returns the users whose row changed most recently.
func (q *Queries) ListActiveUserIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id FROM users WHERE updated_at >= ? ORDER BY updated_at DESC LIMIT ?`,
		formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", mapError(err, "user"))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("%s not found", what)
	}
	return nil
}
