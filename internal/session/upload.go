package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cleared-dev/bankimport/internal/batch"
	"github.com/cleared-dev/bankimport/internal/dedup"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

// UploadRequest is one statement file.
type UploadRequest struct {
	FileName string
	Data     []byte
}

// UploadResult summarizes an upload. Counts stay accurate when some
// documents fail.
type UploadResult struct {
	Session            model.ImportSession
	Imported           int
	Duplicates         int
	Errors             int
	Skipped            int // documents of other types
	Invalid            int // payment orders missing a valid date or amount
	PossibleDuplicates int // content hash already posted
	Stats              model.ParseStats
	ItemErrors         []batch.ItemError
}

type uploadItem struct {
	index int
	doc   model.ParsedDocument
}

// Upload parses a statement, opens a session and stores one matched and
// duplicate-checked draft per document. File-level problems abort before
// any session exists; per-document failures are logged and counted.
func (s *Service) Upload(ctx context.Context, companyID string, req UploadRequest) (UploadResult, error) {
	log := s.log.With().Str("company_id", companyID).Str("file", req.FileName).Logger()

	if int64(len(req.Data)) > s.opts.MaxFileBytes {
		return UploadResult{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(req.Data), s.opts.MaxFileBytes)
	}
	stmt, err := s.parsers.Parse(s.opts.Format, req.Data)
	if err != nil {
		return UploadResult{}, err
	}
	if len(stmt.Documents) > s.opts.MaxDocuments {
		return UploadResult{}, fmt.Errorf("%w: %d documents, limit %d", ErrTooManyDocuments, len(stmt.Documents), s.opts.MaxDocuments)
	}

	company, err := s.company(ctx, companyID)
	if err != nil {
		return UploadResult{}, err
	}
	engine, cat, err := s.matcher(ctx, company)
	if err != nil {
		return UploadResult{}, err
	}
	detector := s.detector(company)

	res := UploadResult{
		Skipped: stmt.Stats.DocumentsSkipped,
		Invalid: stmt.Stats.DocumentsInvalid,
		Stats:   stmt.Stats,
	}
	if n, err := detector.HashPrecheck(ctx, companyID, stmt.Documents); err != nil {
		log.Warn().Err(err).Msg("hash precheck failed")
	} else {
		res.PossibleDuplicates = n
	}

	sess := model.ImportSession{
		CompanyID:      companyID,
		FileName:       req.FileName,
		CompanyAccount: stmt.CompanyAccount,
		Encoding:       stmt.Encoding,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateSession(ctx, &sess); err != nil {
		return UploadResult{}, err
	}
	log = log.With().Str("session_id", sess.ID).Logger()

	verdicts, err := detector.CheckBatch(ctx, companyID, sess.ID, stmt.Documents)
	if err != nil {
		log.Warn().Err(err).Msg("duplicate check failed, drafts stored unflagged")
		verdicts = make([]dedup.Verdict, len(stmt.Documents))
	}

	items := make([]uploadItem, len(stmt.Documents))
	for i, doc := range stmt.Documents {
		items[i] = uploadItem{index: i, doc: doc}
	}

	// Every chunk re-checks that the session still belongs to the company.
	// Losing it aborts the remaining chunks.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	begin := func(ctx context.Context, fn func(*store.Tx) error) error {
		return s.store.Transaction(ctx, func(tx *store.Tx) error {
			if _, err := s.session(ctx, tx, companyID, sess.ID); err != nil {
				cancel(err)
				return err
			}
			return fn(tx)
		})
	}

	step := func(ctx context.Context, tx *store.Tx, it uploadItem) error {
		d := model.ImportedOperation{
			CompanyID: companyID,
			SessionID: sess.ID,
			Source:    it.doc,
			CreatedAt: sess.CreatedAt.Add(time.Duration(it.index) * time.Nanosecond),
		}
		m := engine.WithUsage(tx).AutoMatch(ctx, it.doc, stmt.CompanyAccount)
		classify(&d, m, cat, s.opts.DefaultCurrency)

		if v := verdicts[it.index]; v.Duplicate {
			d.IsDuplicate = true
			d.DuplicateOfID = v.OfID
			d.DuplicateSource = v.Source
		}
		return tx.InsertDraft(ctx, &d)
	}

	br, err := batch.Process(ctx, items, batch.Options[uploadItem]{
		ChunkSize:       s.opts.DraftBatchSize,
		ContinueOnError: !s.opts.StopOnError,
		Key:             func(it uploadItem) string { return "document " + strconv.Itoa(it.index+1) },
		Log:             log,
	}, begin, step)
	if cause := context.Cause(ctx); cause != nil && errors.Is(cause, ErrSessionNotFound) {
		return UploadResult{}, cause
	}
	if err != nil {
		log.Warn().Err(err).Msg("upload stopped early")
	}

	res.Errors = br.Failed
	res.ItemErrors = br.Errors
	res.Session, err = s.store.RecomputeSession(ctx, companyID, sess.ID)
	if err != nil {
		return res, err
	}
	res.Imported = res.Session.ImportedCount
	counts, err := s.store.CountDrafts(ctx, companyID, sess.ID)
	if err != nil {
		return res, err
	}
	res.Duplicates = counts.Duplicates

	log.Info().
		Int("imported", res.Imported).
		Int("duplicates", res.Duplicates).
		Int("errors", res.Errors).
		Int("skipped", res.Skipped).
		Int("invalid", res.Invalid).
		Msg("statement uploaded")
	return res, nil
}
