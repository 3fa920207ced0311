package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cleared-dev/bankimport/internal/id"
	"github.com/cleared-dev/bankimport/internal/model"
)

const sessionColumns = `id, company_id, file_name, company_account, encoding, status,
	imported_count, confirmed_count, processed_count, created_at, updated_at`

func scanSession(s scanner) (model.ImportSession, error) {
	var (
		sess             model.ImportSession
		status           string
		created, updated string
	)
	if err := s.Scan(&sess.ID, &sess.CompanyID, &sess.FileName, &sess.CompanyAccount, &sess.Encoding, &status,
		&sess.ImportedCount, &sess.ConfirmedCount, &sess.ProcessedCount, &created, &updated); err != nil {
		return sess, err
	}
	sess.Status = model.SessionStatus(status)
	var err error
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return sess, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return sess, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}

// CreateSession inserts s, assigning ID and timestamps when empty.
func (r Repo) CreateSession(ctx context.Context, s *model.ImportSession) error {
	if s.ID == "" {
		s.ID = id.New()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	s.Recompute()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO import_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CompanyID, s.FileName, s.CompanyAccount, s.Encoding, string(s.Status),
		s.ImportedCount, s.ConfirmedCount, s.ProcessedCount, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession returns a session owned by companyID.
func (r Repo) GetSession(ctx context.Context, companyID, sessionID string) (model.ImportSession, error) {
	s, err := scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM import_sessions WHERE company_id = ? AND id = ?`, companyID, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ImportSession{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return model.ImportSession{}, fmt.Errorf("querying session: %w", err)
	}
	return s, nil
}

// SessionFilter narrows ListSessions. Zero fields do not filter.
type SessionFilter struct {
	Status        model.SessionStatus
	CreatedFrom   time.Time
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

// ListSessions returns one page of sessions, newest first, and the total
// number matching the filter.
func (r Repo) ListSessions(ctx context.Context, companyID string, f SessionFilter) ([]model.ImportSession, int, error) {
	where := []string{"company_id = ?"}
	args := []any{companyID}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.CreatedFrom.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.CreatedFrom))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(f.CreatedBefore))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_sessions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting sessions: %w", err)
	}

	sessions, err := queryAll(ctx, r.q,
		`SELECT `+sessionColumns+` FROM import_sessions WHERE `+cond+` ORDER BY created_at DESC, id `+limitClause(f.Limit, f.Offset),
		args, scanSession)
	if err != nil {
		return nil, 0, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, total, nil
}

// RecomputeSession refreshes the session counters from its drafts and
// derives the status.
func (r Repo) RecomputeSession(ctx context.Context, companyID, sessionID string) (model.ImportSession, error) {
	s, err := r.GetSession(ctx, companyID, sessionID)
	if err != nil {
		return model.ImportSession{}, err
	}
	err = r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(confirmed), 0), COALESCE(SUM(processed), 0)
		FROM imported_operations WHERE company_id = ? AND session_id = ?`,
		companyID, sessionID,
	).Scan(&s.ImportedCount, &s.ConfirmedCount, &s.ProcessedCount)
	if err != nil {
		return model.ImportSession{}, fmt.Errorf("counting drafts: %w", err)
	}
	s.Recompute()
	s.UpdatedAt = time.Now().UTC()

	_, err = r.q.ExecContext(ctx, `
		UPDATE import_sessions
		SET imported_count = ?, confirmed_count = ?, processed_count = ?, status = ?, updated_at = ?
		WHERE company_id = ? AND id = ?`,
		s.ImportedCount, s.ConfirmedCount, s.ProcessedCount, string(s.Status), formatTime(s.UpdatedAt),
		companyID, sessionID)
	if err != nil {
		return model.ImportSession{}, fmt.Errorf("updating session: %w", err)
	}
	return s, nil
}

// DeleteSession removes the session's drafts, then the session, and returns
// the number of rows removed.
func (r Repo) DeleteSession(ctx context.Context, companyID, sessionID string) (int, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM imported_operations WHERE company_id = ? AND session_id = ?`, companyID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting drafts: %w", err)
	}
	drafts, err := rowsAffected(res)
	if err != nil {
		return 0, err
	}

	res, err = r.q.ExecContext(ctx,
		`DELETE FROM import_sessions WHERE company_id = ? AND id = ?`, companyID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("deleting session: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return drafts + n, nil
}

func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, max(offset, 0))
}
