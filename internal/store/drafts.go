package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/bankimport/internal/dedup"
	"github.com/cleared-dev/bankimport/internal/id"
	"github.com/cleared-dev/bankimport/internal/model"
)

const draftColumns = `id, company_id, session_id, date, number, amount,
	payer, payer_tax_id, payer_account, receiver, receiver_tax_id, receiver_account, purpose, content_hash,
	direction, article_id, counterparty_id, account_id, currency, matched_by, matched_rule_id,
	confirmed, processed, is_duplicate, duplicate_of_id, duplicate_source, operation_id, locked_fields,
	created_at, updated_at`

func scanDraft(s scanner) (model.ImportedOperation, error) {
	var (
		d                            model.ImportedOperation
		date, amount                 string
		direction, matchedBy, dupSrc string
		locked, created, updated     string
	)
	src := &d.Source
	if err := s.Scan(&d.ID, &d.CompanyID, &d.SessionID, &date, &src.Number, &amount,
		&src.Payer, &src.PayerTaxID, &src.PayerAccount, &src.Receiver, &src.ReceiverTaxID, &src.ReceiverAccount,
		&src.Purpose, &src.Hash,
		&direction, &d.ArticleID, &d.CounterpartyID, &d.AccountID, &d.Currency, &matchedBy, &d.MatchedRuleID,
		&d.Confirmed, &d.Processed, &d.IsDuplicate, &d.DuplicateOfID, &dupSrc, &d.OperationID, &locked,
		&created, &updated); err != nil {
		return d, err
	}

	var err error
	if src.Date, err = parseDate(date); err != nil {
		return d, fmt.Errorf("parsing date: %w", err)
	}
	if src.Amount, err = decimal.NewFromString(amount); err != nil {
		return d, fmt.Errorf("parsing amount: %w", err)
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return d, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return d, fmt.Errorf("parsing updated_at: %w", err)
	}
	d.Direction = model.Direction(direction)
	d.MatchedBy = model.MatchedBy(matchedBy)
	d.DuplicateSource = model.DuplicateSource(dupSrc)
	d.LockedFields = model.ParseFieldSet(locked)
	return d, nil
}

// InsertDraft stores a new draft, assigning ID and timestamps when empty.
func (r Repo) InsertDraft(ctx context.Context, d *model.ImportedOperation) error {
	if d.ID == "" {
		d.ID = id.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	src := d.Source
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO imported_operations (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CompanyID, d.SessionID, src.Date.Format(dateLayout), src.Number, src.Amount.StringFixed(2),
		src.Payer, src.PayerTaxID, src.PayerAccount, src.Receiver, src.ReceiverTaxID, src.ReceiverAccount,
		src.Purpose, src.Hash,
		string(d.Direction), d.ArticleID, d.CounterpartyID, d.AccountID, d.Currency, string(d.MatchedBy), d.MatchedRuleID,
		d.Confirmed, d.Processed, d.IsDuplicate, d.DuplicateOfID, string(d.DuplicateSource), d.OperationID,
		d.LockedFields.String(), formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}
	return nil
}

// UpdateDraft writes the mutable columns of d. The original source fields
// are never rewritten.
func (r Repo) UpdateDraft(ctx context.Context, d *model.ImportedOperation) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE imported_operations SET
			direction = ?, article_id = ?, counterparty_id = ?, account_id = ?, currency = ?,
			matched_by = ?, matched_rule_id = ?, confirmed = ?, processed = ?,
			is_duplicate = ?, duplicate_of_id = ?, duplicate_source = ?, operation_id = ?,
			locked_fields = ?, updated_at = ?
		WHERE company_id = ? AND session_id = ? AND id = ?`,
		string(d.Direction), d.ArticleID, d.CounterpartyID, d.AccountID, d.Currency,
		string(d.MatchedBy), d.MatchedRuleID, d.Confirmed, d.Processed,
		d.IsDuplicate, d.DuplicateOfID, string(d.DuplicateSource), d.OperationID,
		d.LockedFields.String(), formatTime(d.UpdatedAt),
		d.CompanyID, d.SessionID, d.ID)
	if err != nil {
		return fmt.Errorf("updating draft: %w", err)
	}
	if n, _ := rowsAffected(res); n == 0 {
		return fmt.Errorf("draft %s: %w", d.ID, ErrNotFound)
	}
	return nil
}

// MarkDraftPosted flags an unposted draft as processed by operationID. It
// returns ErrAlreadyPosted when the draft was posted in the meantime.
func (r Repo) MarkDraftPosted(ctx context.Context, companyID, sessionID, draftID, operationID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE imported_operations SET processed = 1, operation_id = ?, updated_at = ?
		WHERE company_id = ? AND session_id = ? AND id = ? AND processed = 0`,
		operationID, formatTime(time.Now().UTC()), companyID, sessionID, draftID)
	if err != nil {
		return fmt.Errorf("marking draft posted: %w", err)
	}
	if n, _ := rowsAffected(res); n == 0 {
		return fmt.Errorf("draft %s: %w", draftID, ErrAlreadyPosted)
	}
	return nil
}

// GetDraft returns one draft of a session.
func (r Repo) GetDraft(ctx context.Context, companyID, sessionID, draftID string) (model.ImportedOperation, error) {
	d, err := scanDraft(r.q.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM imported_operations WHERE company_id = ? AND session_id = ? AND id = ?`,
		companyID, sessionID, draftID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ImportedOperation{}, fmt.Errorf("draft %s: %w", draftID, ErrNotFound)
	}
	if err != nil {
		return model.ImportedOperation{}, fmt.Errorf("querying draft: %w", err)
	}
	return d, nil
}

// DraftFilter narrows ListDrafts. Nil pointers do not filter.
type DraftFilter struct {
	Confirmed *bool
	Matched   *bool // article and account both set
	Duplicate *bool
	Processed *bool
	Limit     int
	Offset    int
}

// ListDrafts returns one page of a session's drafts in statement order.
func (r Repo) ListDrafts(ctx context.Context, companyID, sessionID string, f DraftFilter) ([]model.ImportedOperation, error) {
	where := []string{"company_id = ?", "session_id = ?"}
	args := []any{companyID, sessionID}
	addBool := func(v *bool, col string) {
		if v != nil {
			where = append(where, col+" = ?")
			args = append(args, *v)
		}
	}
	addBool(f.Confirmed, "confirmed")
	addBool(f.Duplicate, "is_duplicate")
	addBool(f.Processed, "processed")
	if f.Matched != nil {
		if *f.Matched {
			where = append(where, "article_id <> '' AND account_id <> ''")
		} else {
			where = append(where, "(article_id = '' OR account_id = '')")
		}
	}

	drafts, err := queryAll(ctx, r.q,
		`SELECT `+draftColumns+` FROM imported_operations WHERE `+strings.Join(where, " AND ")+
			` ORDER BY created_at, id `+limitClause(f.Limit, f.Offset),
		args, scanDraft)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	return drafts, nil
}

// DraftsByIDs returns the requested drafts of a session. Unknown ids are
// silently absent from the result.
func (r Repo) DraftsByIDs(ctx context.Context, companyID, sessionID string, ids []string) ([]model.ImportedOperation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{companyID, sessionID}
	for _, id := range ids {
		args = append(args, id)
	}
	drafts, err := queryAll(ctx, r.q,
		`SELECT `+draftColumns+` FROM imported_operations WHERE company_id = ? AND session_id = ? AND id IN (`+
			placeholders(len(ids))+`) ORDER BY created_at, id`,
		args, scanDraft)
	if err != nil {
		return nil, fmt.Errorf("loading drafts: %w", err)
	}
	return drafts, nil
}

// DraftCounts are the derived counts shown with a draft listing.
type DraftCounts struct {
	Total      int
	Confirmed  int
	Unmatched  int
	Duplicates int
	Processed  int
}

// CountDrafts computes DraftCounts for a session.
func (r Repo) CountDrafts(ctx context.Context, companyID, sessionID string) (DraftCounts, error) {
	var c DraftCounts
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(confirmed), 0),
			COALESCE(SUM(CASE WHEN article_id = '' OR account_id = '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(is_duplicate), 0),
			COALESCE(SUM(processed), 0)
		FROM imported_operations WHERE company_id = ? AND session_id = ?`,
		companyID, sessionID,
	).Scan(&c.Total, &c.Confirmed, &c.Unmatched, &c.Duplicates, &c.Processed)
	if err != nil {
		return DraftCounts{}, fmt.Errorf("counting drafts: %w", err)
	}
	return c, nil
}

// FindPendingDrafts returns unprocessed drafts of other sessions inside w.
func (r Repo) FindPendingDrafts(ctx context.Context, companyID, excludeSessionID string, w dedup.Window) ([]model.ImportedOperation, error) {
	drafts, err := queryAll(ctx, r.q,
		`SELECT `+draftColumns+` FROM imported_operations
		WHERE company_id = ? AND session_id <> ? AND processed = 0
			AND date BETWEEN ? AND ?
			AND CAST(amount AS REAL) BETWEEN ? AND ?
		ORDER BY date, id`,
		[]any{companyID, excludeSessionID, w.From.Format(dateLayout), w.To.Format(dateLayout),
			w.MinAmount.InexactFloat64(), w.MaxAmount.InexactFloat64()},
		scanDraft)
	if err != nil {
		return nil, fmt.Errorf("finding pending drafts: %w", err)
	}
	return drafts, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
