// Package session orchestrates statement imports: a statement upload
// becomes a session of drafts, drafts are reviewed and re-matched, and
// confirmed drafts are posted to the ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/config"
	"github.com/cleared-dev/bankimport/internal/dedup"
	"github.com/cleared-dev/bankimport/internal/importer"
	"github.com/cleared-dev/bankimport/internal/matching"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

var (
	ErrSessionNotFound  = errors.New("import session not found")
	ErrNothingToImport  = errors.New("nothing to import")
	ErrFileTooLarge     = errors.New("statement file too large")
	ErrTooManyDocuments = errors.New("too many documents in statement")
	ErrDraftProcessed   = errors.New("draft already posted")
	ErrDraftNotFound    = errors.New("draft not found")
	ErrInvalidPatch     = errors.New("invalid draft update")
)

// CacheInvalidator is told when posted data changes so derived reports can
// be rebuilt.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, companyID, reason string)
}

// LogInvalidator only logs invalidations.
type LogInvalidator struct {
	Log zerolog.Logger
}

// Invalidate logs the reason at info level.
func (l LogInvalidator) Invalidate(_ context.Context, companyID, reason string) {
	l.Log.Info().Str("company_id", companyID).Str("reason", reason).Msg("report cache invalidated")
}

// Options tune the service. Zero values select the config defaults.
type Options struct {
	MaxFileBytes       int64
	MaxDocuments       int
	DraftBatchSize     int
	PostBatchSize      int
	DefaultCurrency    string
	StopOnError        bool // abort a run at the first failed item
	FuzzyThreshold     float64
	FuzzyMaxCandidates int
	WindowDays         int
	IgnoreCompanyTaxID bool
	Taxonomy           *matching.Taxonomy
	Format             string // parser format, "1c" by default
}

// OptionsFromConfig maps the import, matching and duplicate sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxFileBytes:       cfg.Import.MaxFileBytes,
		MaxDocuments:       cfg.Import.MaxDocuments,
		DraftBatchSize:     cfg.Import.DraftBatchSize,
		PostBatchSize:      cfg.Import.PostBatchSize,
		DefaultCurrency:    cfg.Import.DefaultCurrency,
		StopOnError:        !cfg.Import.ContinueOnError,
		FuzzyThreshold:     cfg.Matching.FuzzyThreshold,
		FuzzyMaxCandidates: cfg.Matching.FuzzyMaxCandidates,
		WindowDays:         cfg.Duplicates.WindowDays,
		IgnoreCompanyTaxID: cfg.Duplicates.IgnoreCompanyTaxID,
	}
}

func (o Options) withDefaults() Options {
	d := OptionsFromConfig(config.Default("", ""))
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = d.MaxFileBytes
	}
	if o.MaxDocuments <= 0 {
		o.MaxDocuments = d.MaxDocuments
	}
	if o.DraftBatchSize <= 0 {
		o.DraftBatchSize = d.DraftBatchSize
	}
	if o.PostBatchSize <= 0 {
		o.PostBatchSize = d.PostBatchSize
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = d.DefaultCurrency
	}
	if o.Format == "" {
		o.Format = "1c"
	}
	return o
}

// Service runs import sessions against a store.
type Service struct {
	store   *store.Store
	parsers *importer.Registry
	cache   CacheInvalidator
	opts    Options
	log     zerolog.Logger
	now     func() time.Time
}

// NewService creates a Service. A nil registry selects the built-in parsers
// and a nil cache logs invalidations.
func NewService(s *store.Store, parsers *importer.Registry, cache CacheInvalidator, opts Options, log zerolog.Logger) *Service {
	if parsers == nil {
		parsers = importer.DefaultRegistry()
	}
	if cache == nil {
		cache = LogInvalidator{Log: log}
	}
	return &Service{
		store:   s,
		parsers: parsers,
		cache:   cache,
		opts:    opts.withDefaults(),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// company loads the tenant.
func (s *Service) company(ctx context.Context, companyID string) (model.Company, error) {
	c, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return model.Company{}, fmt.Errorf("loading company: %w", err)
	}
	return c, nil
}

// session loads a session owned by companyID.
func (s *Service) session(ctx context.Context, q sessionGetter, companyID, sessionID string) (model.ImportSession, error) {
	sess, err := q.GetSession(ctx, companyID, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return model.ImportSession{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return sess, err
}

type sessionGetter interface {
	GetSession(ctx context.Context, companyID, sessionID string) (model.ImportSession, error)
}

// matcher snapshots the company's catalog and rules into an engine.
func (s *Service) matcher(ctx context.Context, c model.Company) (*matching.Engine, *catalog.Catalog, error) {
	cat, err := s.store.LoadCatalog(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	rules, err := s.store.ListRules(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	e := matching.New(matching.Options{
		CompanyID:          c.ID,
		CompanyTaxID:       c.TaxID,
		Catalog:            cat,
		Rules:              rules,
		Taxonomy:           s.opts.Taxonomy,
		Usage:              s.store,
		FuzzyThreshold:     s.opts.FuzzyThreshold,
		FuzzyMaxCandidates: s.opts.FuzzyMaxCandidates,
		Log:                s.log.With().Str("company_id", c.ID).Logger(),
		Now:                s.now,
	})
	return e, cat, nil
}

func (s *Service) detector(c model.Company) *dedup.Detector {
	o := dedup.Options{WindowDays: s.opts.WindowDays}
	if s.opts.IgnoreCompanyTaxID {
		o.IgnoreTaxID = c.TaxID
	}
	return dedup.New(s.store, o)
}

// classify writes a match result onto d. Locked fields keep their value;
// when article or account is locked the draft's provenance is recomputed
// as a manual one.
func classify(d *model.ImportedOperation, res matching.Result, cat *catalog.Catalog, defaultCurrency string) {
	locked := d.LockedFields
	if !locked.Has(model.FieldDirection) {
		d.Direction = res.Direction
	}
	if !locked.Has(model.FieldCounterparty) {
		d.CounterpartyID = res.Counterparty.ID
	}
	if !locked.Has(model.FieldArticle) {
		d.ArticleID = res.Article.ID
	}
	if !locked.Has(model.FieldAccount) {
		d.AccountID = res.Account.ID
	}
	if !locked.Has(model.FieldCurrency) {
		d.Currency = defaultCurrency
		if acc, ok := cat.Account(d.AccountID); ok && acc.Currency != "" {
			d.Currency = acc.Currency
		}
	}

	d.MatchedBy, d.MatchedRuleID = res.MatchedBy, res.MatchedRuleID
	if locked.Has(model.FieldArticle) || locked.Has(model.FieldAccount) {
		d.MatchedBy, d.MatchedRuleID = manualMatchedBy(d), ""
	}
}

// manualMatchedBy is "manual" once article, account and currency are all set.
func manualMatchedBy(d *model.ImportedOperation) model.MatchedBy {
	if d.ArticleID != "" && d.AccountID != "" && d.Currency != "" {
		return model.MatchedByManual
	}
	return model.MatchedNone
}
