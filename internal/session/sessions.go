package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

// SessionPage is one page of sessions and the total matching the filter.
type SessionPage struct {
	Sessions []model.ImportSession
	Total    int
}

// ListSessions returns the company's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, companyID string, f store.SessionFilter) (SessionPage, error) {
	sessions, total, err := s.store.ListSessions(ctx, companyID, f)
	if err != nil {
		return SessionPage{}, err
	}
	return SessionPage{Sessions: sessions, Total: total}, nil
}

// GetSession returns one session.
func (s *Service) GetSession(ctx context.Context, companyID, sessionID string) (model.ImportSession, error) {
	return s.session(ctx, s.store, companyID, sessionID)
}

// DeleteSession removes a session and all of its drafts, posted ones
// included. Posted ledger operations stay. It returns the number of rows
// deleted.
func (s *Service) DeleteSession(ctx context.Context, companyID, sessionID string) (int, error) {
	var n int
	err := s.store.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		n, err = tx.DeleteSession(ctx, companyID, sessionID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, companyID, "import session deleted")
	s.log.Info().Str("company_id", companyID).Str("session_id", sessionID).Int("deleted", n).Msg("session deleted")
	return n, nil
}
