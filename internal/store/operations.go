package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/bankimport/internal/dedup"
	"github.com/cleared-dev/bankimport/internal/id"
	"github.com/cleared-dev/bankimport/internal/model"
)

const operationColumns = `id, company_id, number, date, type, amount, currency, account_id, to_account_id,
	article_id, counterparty_id, description, content_hash, imported_operation_id, created_at`

func scanOperation(s scanner) (model.Operation, error) {
	var (
		op                     model.Operation
		date, typ, amount, cat string
	)
	if err := s.Scan(&op.ID, &op.CompanyID, &op.Number, &date, &typ, &amount, &op.Currency, &op.AccountID,
		&op.ToAccountID, &op.ArticleID, &op.CounterpartyID, &op.Description, &op.ContentHash,
		&op.ImportedOperationID, &cat); err != nil {
		return op, err
	}
	var err error
	if op.Date, err = parseDate(date); err != nil {
		return op, fmt.Errorf("parsing date: %w", err)
	}
	if op.Amount, err = decimal.NewFromString(amount); err != nil {
		return op, fmt.Errorf("parsing amount: %w", err)
	}
	if op.CreatedAt, err = parseTime(cat); err != nil {
		return op, fmt.Errorf("parsing created_at: %w", err)
	}
	op.Type = model.Direction(typ)
	return op, nil
}

// InsertOperation stores a posted operation, assigning ID and CreatedAt
// when empty.
func (r Repo) InsertOperation(ctx context.Context, op *model.Operation) error {
	if op.ID == "" {
		op.ID = id.New()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.CompanyID, op.Number, op.Date.Format(dateLayout), string(op.Type), op.Amount.StringFixed(2),
		op.Currency, op.AccountID, op.ToAccountID, op.ArticleID, op.CounterpartyID, op.Description,
		op.ContentHash, op.ImportedOperationID, formatTime(op.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting operation: %w", err)
	}
	return nil
}

// OperationNumbers returns the numbers of operations starting with prefix
// (e.g. "2025-02-").
func (r Repo) OperationNumbers(ctx context.Context, companyID, prefix string) ([]string, error) {
	nums, err := queryAll(ctx, r.q,
		`SELECT number FROM operations WHERE company_id = ? AND number LIKE ? ORDER BY number`,
		[]any{companyID, prefix + "%"}, func(s scanner) (string, error) {
			var n string
			err := s.Scan(&n)
			return n, err
		})
	if err != nil {
		return nil, fmt.Errorf("listing operation numbers: %w", err)
	}
	return nums, nil
}

// ListOperations returns posted operations dated in [from, to]. Zero bounds
// are open.
func (r Repo) ListOperations(ctx context.Context, companyID string, from, to time.Time) ([]model.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE company_id = ?`
	args := []any{companyID}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.Format(dateLayout))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, to.Format(dateLayout))
	}
	ops, err := queryAll(ctx, r.q, query+` ORDER BY date, number`, args, scanOperation)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// FindPostedOperations returns operations inside w.
func (r Repo) FindPostedOperations(ctx context.Context, companyID string, w dedup.Window) ([]model.Operation, error) {
	ops, err := queryAll(ctx, r.q,
		`SELECT `+operationColumns+` FROM operations
		WHERE company_id = ? AND date BETWEEN ? AND ? AND CAST(amount AS REAL) BETWEEN ? AND ?
		ORDER BY date, number`,
		[]any{companyID, w.From.Format(dateLayout), w.To.Format(dateLayout),
			w.MinAmount.InexactFloat64(), w.MaxAmount.InexactFloat64()},
		scanOperation)
	if err != nil {
		return nil, fmt.Errorf("finding posted operations: %w", err)
	}
	return ops, nil
}

// ExistingOperationHashes reports which of hashes belong to posted
// operations.
func (r Repo) ExistingOperationHashes(ctx context.Context, companyID string, hashes []string) (map[string]bool, error) {
	out := map[string]bool{}
	if len(hashes) == 0 {
		return out, nil
	}
	args := []any{companyID}
	for _, h := range hashes {
		args = append(args, h)
	}
	found, err := queryAll(ctx, r.q,
		`SELECT DISTINCT content_hash FROM operations WHERE company_id = ? AND content_hash IN (`+placeholders(len(hashes))+`)`,
		args, func(s scanner) (string, error) {
			var h string
			err := s.Scan(&h)
			return h, err
		})
	if err != nil {
		return nil, fmt.Errorf("checking content hashes: %w", err)
	}
	for _, h := range found {
		out[h] = true
	}
	return out, nil
}
