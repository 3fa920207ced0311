package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cleared-dev/bankimport/internal/batch"
	"github.com/cleared-dev/bankimport/internal/id"
	"github.com/cleared-dev/bankimport/internal/ledger"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/rules"
	"github.com/cleared-dev/bankimport/internal/store"
)

// ImportRequest selects drafts to post. Without DraftIDs every confirmed,
// unposted draft of the session is posted.
type ImportRequest struct {
	DraftIDs []string
	// LearnRules stores equals rules for manually classified drafts.
	LearnRules bool
}

// ImportResult summarizes a posting run.
type ImportResult struct {
	Session      model.ImportSession
	Created      int
	Errors       int
	RulesLearned int
	ItemErrors   []batch.ItemError
}

// ImportOperations validates the selected drafts and posts one ledger
// operation per draft. Validation failures abort before anything is
// written; a failure while posting only affects that draft.
func (s *Service) ImportOperations(ctx context.Context, companyID, sessionID string, req ImportRequest) (ImportResult, error) {
	log := s.log.With().Str("company_id", companyID).Str("session_id", sessionID).Logger()

	if _, err := s.session(ctx, s.store, companyID, sessionID); err != nil {
		return ImportResult{}, err
	}
	drafts, err := s.selectForPosting(ctx, companyID, sessionID, req.DraftIDs)
	if err != nil {
		return ImportResult{}, err
	}
	if len(drafts) == 0 {
		return ImportResult{}, fmt.Errorf("session %s: %w", sessionID, ErrNothingToImport)
	}

	cat, err := s.store.LoadCatalog(ctx, companyID)
	if err != nil {
		return ImportResult{}, err
	}
	if err := ledger.ValidateDrafts(drafts, cat); err != nil {
		return ImportResult{}, err
	}

	var (
		res     ImportResult
		learned int // rules learned by the chunk in flight
	)
	step := func(ctx context.Context, tx *store.Tx, d model.ImportedOperation) error {
		// The selection above ran outside any transaction; another run may
		// have posted the draft since.
		cur, err := tx.GetDraft(ctx, companyID, sessionID, d.ID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("draft %s: %w", d.ID, ErrDraftNotFound)
		}
		if err != nil {
			return err
		}
		if cur.Processed {
			return fmt.Errorf("draft %s: %w", d.ID, ErrDraftProcessed)
		}

		numbers, err := tx.OperationNumbers(ctx, companyID, id.OperationNumberPrefix(d.Source.Date))
		if err != nil {
			return err
		}
		op, err := ledger.BuildOperation(d, ledger.NextNumber(numbers, d.Source.Date), cat)
		if err != nil {
			return err
		}
		if err := tx.InsertOperation(ctx, &op); err != nil {
			return err
		}
		if err := tx.MarkDraftPosted(ctx, companyID, sessionID, d.ID, op.ID); err != nil {
			if errors.Is(err, store.ErrAlreadyPosted) {
				return fmt.Errorf("draft %s: %w", d.ID, ErrDraftProcessed)
			}
			return err
		}
		d.Processed = true
		d.OperationID = op.ID

		n := 0
		if req.LearnRules {
			rs, err := rules.Learn(ctx, tx, d, s.now())
			if err != nil {
				return err
			}
			n = len(rs)
		}
		learned += n
		log.Debug().Str("draft_id", d.ID).Str("operation", op.Number).Msg("draft posted")
		return nil
	}
	begin := func(ctx context.Context, fn func(*store.Tx) error) error {
		learned = 0
		err := s.store.Transaction(ctx, fn)
		if err == nil {
			res.RulesLearned += learned
		}
		return err
	}

	br, runErr := batch.Process(ctx, drafts, batch.Options[model.ImportedOperation]{
		ChunkSize:       s.opts.PostBatchSize,
		ContinueOnError: !s.opts.StopOnError,
		Key:             func(d model.ImportedOperation) string { return d.ID },
		Log:             log,
	}, begin, step)
	res.Created = br.Succeeded
	res.Errors = br.Failed
	res.ItemErrors = br.Errors
	if runErr != nil {
		log.Warn().Err(runErr).Msg("posting stopped early")
	}

	res.Session, err = s.store.RecomputeSession(ctx, companyID, sessionID)
	if err != nil {
		return res, err
	}
	if res.Created > 0 {
		s.cache.Invalidate(ctx, companyID, "operations posted")
	}
	log.Info().Int("created", res.Created).Int("errors", res.Errors).Msg("drafts posted")
	return res, nil
}

func (s *Service) selectForPosting(ctx context.Context, companyID, sessionID string, ids []string) ([]model.ImportedOperation, error) {
	if len(ids) == 0 {
		yes, no := true, false
		return s.store.ListDrafts(ctx, companyID, sessionID, store.DraftFilter{Confirmed: &yes, Processed: &no})
	}
	drafts, err := s.store.DraftsByIDs(ctx, companyID, sessionID, ids)
	if err != nil {
		return nil, err
	}
	out := drafts[:0]
	for _, d := range drafts {
		if !d.Processed {
			out = append(out, d)
		}
	}
	return out, nil
}
