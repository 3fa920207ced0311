package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cleared-dev/bankimport/internal/batch"
	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

// DraftPage is one page of drafts with session-wide counts.
type DraftPage struct {
	Drafts []model.ImportedOperation
	Counts store.DraftCounts
}

// ListDrafts returns a filtered page of a session's drafts.
func (s *Service) ListDrafts(ctx context.Context, companyID, sessionID string, f store.DraftFilter) (DraftPage, error) {
	if _, err := s.session(ctx, s.store, companyID, sessionID); err != nil {
		return DraftPage{}, err
	}
	drafts, err := s.store.ListDrafts(ctx, companyID, sessionID, f)
	if err != nil {
		return DraftPage{}, err
	}
	counts, err := s.store.CountDrafts(ctx, companyID, sessionID)
	if err != nil {
		return DraftPage{}, err
	}
	return DraftPage{Drafts: drafts, Counts: counts}, nil
}

// Patch is a manual correction. Nil fields are left alone. Unlock is
// applied first, so a field can be unlocked and edited in one patch.
type Patch struct {
	Direction      *model.Direction
	ArticleID      *string
	CounterpartyID *string
	AccountID      *string
	Currency       *string
	Confirmed      *bool
	Unlock         []model.Field
}

// UpdateResult reports the fields a patch could not touch because they
// were locked.
type UpdateResult struct {
	Draft   model.ImportedOperation
	Skipped []model.Field
}

// UpdateDraft applies p to one draft. Edited fields become locked.
func (s *Service) UpdateDraft(ctx context.Context, companyID, sessionID, draftID string, p Patch) (UpdateResult, error) {
	cat, err := s.store.LoadCatalog(ctx, companyID)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := validatePatch(p, cat); err != nil {
		return UpdateResult{}, err
	}

	var res UpdateResult
	err = s.store.Transaction(ctx, func(tx *store.Tx) error {
		if _, err := s.session(ctx, tx, companyID, sessionID); err != nil {
			return err
		}
		res, err = s.patchDraft(ctx, tx, companyID, sessionID, draftID, p)
		if err != nil {
			return err
		}
		_, err = tx.RecomputeSession(ctx, companyID, sessionID)
		return err
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return res, nil
}

func (s *Service) patchDraft(ctx context.Context, tx *store.Tx, companyID, sessionID, draftID string, p Patch) (UpdateResult, error) {
	d, err := tx.GetDraft(ctx, companyID, sessionID, draftID)
	if errors.Is(err, store.ErrNotFound) {
		return UpdateResult{}, fmt.Errorf("draft %s: %w", draftID, ErrDraftNotFound)
	}
	if err != nil {
		return UpdateResult{}, err
	}
	if d.Processed {
		return UpdateResult{}, fmt.Errorf("draft %s: %w", draftID, ErrDraftProcessed)
	}

	skipped := applyPatch(&d, p)
	if err := tx.UpdateDraft(ctx, &d); err != nil {
		return UpdateResult{}, err
	}
	if len(skipped) > 0 {
		s.log.Debug().Str("draft_id", d.ID).Interface("skipped", skipped).Msg("locked fields left unchanged")
	}
	return UpdateResult{Draft: d, Skipped: skipped}, nil
}

// applyPatch edits d in place and returns the locked fields it skipped.
func applyPatch(d *model.ImportedOperation, p Patch) []model.Field {
	locked := d.LockedFields.Clone()
	for _, f := range p.Unlock {
		locked.Remove(f)
	}

	var skipped []model.Field
	edited := false
	set := func(f model.Field, apply func()) {
		if locked.Has(f) {
			skipped = append(skipped, f)
			return
		}
		apply()
		locked.Add(f)
		edited = true
	}
	if p.Direction != nil {
		set(model.FieldDirection, func() { d.Direction = *p.Direction })
	}
	if p.ArticleID != nil {
		set(model.FieldArticle, func() { d.ArticleID = *p.ArticleID })
	}
	if p.CounterpartyID != nil {
		set(model.FieldCounterparty, func() { d.CounterpartyID = *p.CounterpartyID })
	}
	if p.AccountID != nil {
		set(model.FieldAccount, func() { d.AccountID = *p.AccountID })
	}
	if p.Currency != nil {
		set(model.FieldCurrency, func() { d.Currency = *p.Currency })
	}
	if p.Confirmed != nil {
		d.Confirmed = *p.Confirmed
	}
	d.LockedFields = locked

	if edited {
		d.MatchedBy, d.MatchedRuleID = manualMatchedBy(d), ""
	}
	return skipped
}

func validatePatch(p Patch, cat *catalog.Catalog) error {
	if p.Direction != nil && !p.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidPatch, *p.Direction)
	}
	if p.ArticleID != nil && *p.ArticleID != "" {
		if a, ok := cat.Article(*p.ArticleID); !ok || !a.Active {
			return fmt.Errorf("%w: unknown article %s", ErrInvalidPatch, *p.ArticleID)
		}
	}
	if p.CounterpartyID != nil && *p.CounterpartyID != "" {
		if c, ok := cat.Counterparty(*p.CounterpartyID); !ok || !c.Active {
			return fmt.Errorf("%w: unknown counterparty %s", ErrInvalidPatch, *p.CounterpartyID)
		}
	}
	if p.AccountID != nil && *p.AccountID != "" {
		if a, ok := cat.Account(*p.AccountID); !ok || !a.Active {
			return fmt.Errorf("%w: unknown account %s", ErrInvalidPatch, *p.AccountID)
		}
	}
	for _, f := range p.Unlock {
		if _, ok := model.ParseField(string(f)); !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidPatch, f)
		}
	}
	return nil
}

// BulkResult summarizes a bulk update.
type BulkResult struct {
	Updated int
	Skipped map[string][]model.Field // draft id -> locked fields left alone
	Errors  []batch.ItemError
}

// BulkUpdate applies the same patch to several drafts. A draft that fails
// (posted, missing) is reported without affecting the others.
func (s *Service) BulkUpdate(ctx context.Context, companyID, sessionID string, draftIDs []string, p Patch) (BulkResult, error) {
	if _, err := s.session(ctx, s.store, companyID, sessionID); err != nil {
		return BulkResult{}, err
	}
	cat, err := s.store.LoadCatalog(ctx, companyID)
	if err != nil {
		return BulkResult{}, err
	}
	if err := validatePatch(p, cat); err != nil {
		return BulkResult{}, err
	}

	res := BulkResult{Skipped: map[string][]model.Field{}}
	br, err := batch.Process(ctx, draftIDs, batch.Options[string]{
		ChunkSize:       s.opts.DraftBatchSize,
		ContinueOnError: true,
		Key:             func(id string) string { return id },
		Log:             s.log.With().Str("company_id", companyID).Str("session_id", sessionID).Logger(),
	}, s.store.Transaction, func(ctx context.Context, tx *store.Tx, id string) error {
		ur, err := s.patchDraft(ctx, tx, companyID, sessionID, id, p)
		if err != nil {
			return err
		}
		if len(ur.Skipped) > 0 {
			res.Skipped[id] = ur.Skipped
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Updated = br.Succeeded
	res.Errors = br.Errors

	if _, err := s.store.RecomputeSession(ctx, companyID, sessionID); err != nil {
		return res, err
	}
	return res, nil
}

// ApplyResult summarizes an apply-rules run.
type ApplyResult struct {
	Checked int
	Changed int
	Matched int // fully matched after the run
	Errors  []batch.ItemError
}

// ApplyRules re-runs matching over the session's unconfirmed, unposted
// drafts. Locked fields are kept. Running it twice without rule or manual
// changes in between changes nothing the second time.
func (s *Service) ApplyRules(ctx context.Context, companyID, sessionID string) (ApplyResult, error) {
	sess, err := s.session(ctx, s.store, companyID, sessionID)
	if err != nil {
		return ApplyResult{}, err
	}
	company, err := s.company(ctx, companyID)
	if err != nil {
		return ApplyResult{}, err
	}
	engine, cat, err := s.matcher(ctx, company)
	if err != nil {
		return ApplyResult{}, err
	}

	no := false
	drafts, err := s.store.ListDrafts(ctx, companyID, sessionID, store.DraftFilter{Confirmed: &no, Processed: &no})
	if err != nil {
		return ApplyResult{}, err
	}

	var (
		res              ApplyResult
		matched, changed int // counts of the chunk in flight
	)
	begin := func(ctx context.Context, fn func(*store.Tx) error) error {
		matched, changed = 0, 0
		err := s.store.Transaction(ctx, fn)
		if err == nil {
			res.Matched += matched
			res.Changed += changed
		}
		return err
	}
	br, err := batch.Process(ctx, drafts, batch.Options[model.ImportedOperation]{
		ChunkSize:       s.opts.DraftBatchSize,
		ContinueOnError: !s.opts.StopOnError,
		Key:             func(d model.ImportedOperation) string { return d.ID },
		Log:             s.log.With().Str("company_id", companyID).Str("session_id", sessionID).Logger(),
	}, begin, func(ctx context.Context, tx *store.Tx, listed model.ImportedOperation) error {
		d, err := tx.GetDraft(ctx, companyID, sessionID, listed.ID)
		if err != nil {
			return err
		}
		// Confirmed or posted since the listing: leave it alone.
		if d.Confirmed || d.Processed {
			return nil
		}
		before := d
		lockedDir := model.DirectionUndetermined
		if d.LockedFields.Has(model.FieldDirection) {
			lockedDir = d.Direction
		}
		m := engine.WithUsage(tx).MatchAs(ctx, d.Source, sess.CompanyAccount, lockedDir)
		classify(&d, m, cat, s.opts.DefaultCurrency)
		if !sameClassification(before, d) {
			if err := tx.UpdateDraft(ctx, &d); err != nil {
				return err
			}
			changed++
		}
		if d.FullyMatched() {
			matched++
		}
		return nil
	})
	res.Checked = len(drafts)
	res.Errors = br.Errors
	if err != nil {
		return res, err
	}

	if _, err := s.store.RecomputeSession(ctx, companyID, sessionID); err != nil {
		return res, err
	}
	s.log.Info().Str("company_id", companyID).Str("session_id", sessionID).
		Int("checked", res.Checked).Int("changed", res.Changed).Msg("rules applied")
	return res, nil
}

func sameClassification(a, b model.ImportedOperation) bool {
	return a.Direction == b.Direction &&
		a.ArticleID == b.ArticleID &&
		a.CounterpartyID == b.CounterpartyID &&
		a.AccountID == b.AccountID &&
		a.Currency == b.Currency &&
		a.MatchedBy == b.MatchedBy &&
		a.MatchedRuleID == b.MatchedRuleID
}
