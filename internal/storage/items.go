package storage

import (
	"context"
	"fmt"
	"strings"

	"familybudget/internal/core"
)

const itemColumns = `id, user_id, kind, name, amount_cents, quantity, linked_to_budget, created_at, updated_at`

func scanItem(s scanner) (core.BudgetItem, error) {
	var (
		it               core.BudgetItem
		kind             string
		amountC          int64
		linked           int
		created, updated string
	)
	if err := s.Scan(&it.ID, &it.UserID, &kind, &it.Name, &amountC, &it.Quantity,
		&linked, &created, &updated); err != nil {
		return core.BudgetItem{}, err
	}
	it.Kind = core.Kind(kind)
	it.Amount = core.Money{Cents: amountC}
	it.LinkedToBudget = linked != 0
	it.CreatedAt = parseTime(created)
	it.UpdatedAt = parseTime(updated)
	return it, nil
}

func (q *Queries) InsertItem(ctx context.Context, it core.BudgetItem) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO budget_items (id, user_id, kind, name, name_lower, amount_cents, quantity,
		                          linked_to_budget, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		it.ID, it.UserID, string(it.Kind), it.Name, strings.ToLower(it.Name), it.Amount.Cents, it.Quantity,
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert item: %w", mapError(err, "item"))
	}
	return nil
}

func (q *Queries) GetItem(ctx context.Context, id string) (core.BudgetItem, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM budget_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err != nil {
		return core.BudgetItem{}, fmt.Errorf("get item: %w", mapError(err, "item"))
	}
	return it, nil
}

// UpdateItem writes the client-editable columns. linked_to_budget is owned
// by RefreshLinkedFlags.
func (q *Queries) UpdateItem(ctx context.Context, it core.BudgetItem) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE budget_items
		SET kind = ?, name = ?, name_lower = ?, amount_cents = ?, quantity = ?, updated_at = ?
		WHERE id = ?`,
		string(it.Kind), it.Name, strings.ToLower(it.Name), it.Amount.Cents, it.Quantity,
		formatTime(it.UpdatedAt), it.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", mapError(err, "item"))
	}
	return requireAffected(res, "item")
}

func (q *Queries) DeleteItem(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budget_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", mapError(err, "item"))
	}
	return requireAffected(res, "item")
}

// ItemNameTaken reports whether another item already uses name, ignoring
// case. excludeID lets an item keep its own name on update.
func (q *Queries) ItemNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budget_items WHERE name_lower = ? AND id <> ?`,
		strings.ToLower(strings.TrimSpace(name)), excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check item name: %w", mapError(err, "item"))
	}
	return n > 0, nil
}

// ListItems returns one page of the user's items, newest first, and the
// number of items matching the filter.
func (q *Queries) ListItems(ctx context.Context, f core.ItemFilter) ([]core.BudgetItem, int, error) {
	where := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.MinAmount != nil {
		where = append(where, "amount_cents >= ?")
		args = append(args, f.MinAmount.Cents)
	}
	if f.MaxAmount != nil {
		where = append(where, "amount_cents <= ?")
		args = append(args, f.MaxAmount.Cents)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, `name_lower LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(s))+"%")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM budget_items WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", mapError(err, "item"))
	}

	limit := f.Page.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM budget_items WHERE `+clause+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, f.Page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", mapError(err, "item"))
	}
	defer rows.Close()

	items := []core.BudgetItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate items: %w", err)
	}
	return items, total, nil
}

// GetItemsByIDs returns the existing items among ids, in no particular order.
func (q *Queries) GetItemsByIDs(ctx context.Context, ids []string) ([]core.BudgetItem, error) {
	if len(ids) == 0 {
		return []core.BudgetItem{}, nil
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM budget_items WHERE id IN (`+placeholders(len(ids))+`)`,
		toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", mapError(err, "item"))
	}
	defer rows.Close()

	items := []core.BudgetItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SumItems recomputes the user's totals from the item rows. It is a read
// used to audit the cached aggregates and never writes them.
func (q *Queries) SumItems(ctx context.Context, userID string) (income, expenses core.Money, err error) {
	var inc, exp int64
	err = q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'INCOME' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'EXPENSE' THEN amount_cents * quantity ELSE 0 END), 0)
		FROM budget_items WHERE user_id = ?`, userID).Scan(&inc, &exp)
	if err != nil {
		return core.Money{}, core.Money{}, fmt.Errorf("sum items: %w", mapError(err, "item"))
	}
	return core.Money{Cents: inc}, core.Money{Cents: exp}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
