package storage

import (
	"context"
	"fmt"
	"strings"

	"familybudget/internal/core"
)

const budgetColumns = `id, user_id, category, name, created_at, updated_at`

func scanBudget(s scanner) (core.Budget, error) {
	var (
		b                core.Budget
		category         string
		created, updated string
	)
	if err := s.Scan(&b.ID, &b.UserID, &category, &b.Name, &created, &updated); err != nil {
		return core.Budget{}, err
	}
	b.Category = core.Category(category)
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return b, nil
}

func (q *Queries) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, category, name, name_lower, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, string(b.Category), b.Name, strings.ToLower(b.Name),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert budget: %w", mapError(err, "budget"))
	}
	return nil
}

// GetBudget loads the budget together with its member item ids.
func (q *Queries) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id)
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", mapError(err, "budget"))
	}
	ids, err := q.budgetItemIDs(ctx, id)
	if err != nil {
		return core.Budget{}, err
	}
	b.ItemIDs = ids
	return b, nil
}

func (q *Queries) UpdateBudget(ctx context.Context, b core.Budget) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE budgets SET category = ?, name = ?, name_lower = ?, updated_at = ? WHERE id = ?`,
		string(b.Category), b.Name, strings.ToLower(b.Name), formatTime(b.UpdatedAt), b.ID)
	if err != nil {
		return fmt.Errorf("update budget: %w", mapError(err, "budget"))
	}
	return requireAffected(res, "budget")
}

func (q *Queries) DeleteBudget(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", mapError(err, "budget"))
	}
	return requireAffected(res, "budget")
}

func (q *Queries) BudgetNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM budgets WHERE name_lower = ? AND id <> ?`,
		strings.ToLower(strings.TrimSpace(name)), excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check budget name: %w", mapError(err, "budget"))
	}
	return n > 0, nil
}

// ListBudgets returns one page of the user's budgets, newest first.
func (q *Queries) ListBudgets(ctx context.Context, userID string, page core.Page) ([]core.Budget, int, error) {
	var total int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM budgets WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count budgets: %w", mapError(err, "budget"))
	}

	limit := page.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		userID, limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list budgets: %w", mapError(err, "budget"))
	}

	budgets := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate budgets: %w", err)
	}

	for i := range budgets {
		ids, err := q.budgetItemIDs(ctx, budgets[i].ID)
		if err != nil {
			return nil, 0, err
		}
		budgets[i].ItemIDs = ids
	}
	return budgets, total, nil
}

// SetBudgetItems replaces the budget's membership with itemIDs and returns
// every item whose membership changed.
func (q *Queries) SetBudgetItems(ctx context.Context, budgetID string, itemIDs []string) ([]string, error) {
	before, err := q.budgetItemIDs(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM budget_memberships WHERE budget_id = ?`, budgetID); err != nil {
		return nil, fmt.Errorf("clear budget items: %w", mapError(err, "budget"))
	}
	for _, id := range itemIDs {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO budget_memberships (budget_id, item_id) VALUES (?, ?)`, budgetID, id); err != nil {
			return nil, fmt.Errorf("add budget item: %w", mapError(err, "item"))
		}
	}
	return symmetricDiff(before, itemIDs), nil
}

func (q *Queries) AddBudgetItem(ctx context.Context, budgetID, itemID string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO budget_memberships (budget_id, item_id) VALUES (?, ?)`, budgetID, itemID)
	if err != nil {
		return fmt.Errorf("add budget item: %w", mapError(err, "item"))
	}
	return nil
}

func (q *Queries) RemoveBudgetItem(ctx context.Context, budgetID, itemID string) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM budget_memberships WHERE budget_id = ? AND item_id = ?`, budgetID, itemID)
	if err != nil {
		return fmt.Errorf("remove budget item: %w", mapError(err, "item"))
	}
	return requireAffected(res, "budget item")
}

// RefreshLinkedFlags sets linked_to_budget on each item to whether it
// belongs to at least one budget.
func (q *Queries) RefreshLinkedFlags(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE budget_items
		SET linked_to_budget = EXISTS (SELECT 1 FROM budget_memberships m WHERE m.item_id = budget_items.id)
		WHERE id IN (`+placeholders(len(itemIDs))+`)`, toArgs(itemIDs)...)
	if err != nil {
		return fmt.Errorf("refresh linked flags: %w", mapError(err, "item"))
	}
	return nil
}

// BudgetItems returns the member items of a budget.
func (q *Queries) BudgetItems(ctx context.Context, budgetID string) ([]core.BudgetItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT i.id, i.user_id, i.kind, i.name, i.amount_cents, i.quantity, i.linked_to_budget, i.created_at, i.updated_at
		FROM budget_items i
		JOIN budget_memberships m ON m.item_id = i.id
		WHERE m.budget_id = ?
		ORDER BY i.created_at, i.id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("budget items: %w", mapError(err, "budget"))
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

func (q *Queries) budgetItemIDs(ctx context.Context, budgetID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT item_id FROM budget_memberships WHERE budget_id = ? ORDER BY item_id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("budget item ids: %w", mapError(err, "budget"))
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func symmetricDiff(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, v := range a {
		inA[v] = true
	}
	inB := make(map[string]bool, len(b))
	var out []string
	for _, v := range b {
		inB[v] = true
		if !inA[v] {
			out = append(out, v)
		}
	}
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	return out
}
