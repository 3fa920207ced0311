package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/bankimport/internal/auditlog"
	"github.com/cleared-dev/bankimport/internal/config"
	"github.com/cleared-dev/bankimport/internal/logger"
	"github.com/cleared-dev/bankimport/internal/matching"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/rules"
	"github.com/cleared-dev/bankimport/internal/session"
	"github.com/cleared-dev/bankimport/internal/store"
)

// ConfigFile is the project configuration file name.
const ConfigFile = "bankimport.yaml"

// app is the opened project a command works against.
type app struct {
	dir      string
	cfg      *config.Config
	store    *store.Store
	company  model.Company
	log      zerolog.Logger
	audit    *auditlog.Log
	sessions *session.Service
	rules    *rules.Service
}

// openApp loads the project config in dir, opens its database and resolves
// the configured company.
func openApp(ctx context.Context, dir string) (*app, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	cfg, err := config.Load(filepath.Join(absDir, ConfigFile))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	st, err := store.Open(projectPath(absDir, cfg.Database.Path))
	if err != nil {
		return nil, err
	}
	company, err := st.CompanyByTaxID(ctx, cfg.Company.TaxID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("company %s: %w (run init first)", cfg.Company.TaxID, err)
	}

	opts := session.OptionsFromConfig(cfg)
	if cfg.Matching.TaxonomyFile != "" {
		tax, err := matching.LoadTaxonomy(projectPath(absDir, cfg.Matching.TaxonomyFile))
		if err != nil {
			st.Close()
			return nil, err
		}
		opts.Taxonomy = tax
	}

	log = log.With().Str("company_id", company.ID).Logger()
	audit := auditlog.New(absDir)
	cache := auditlog.Invalidator{Log: audit, Logger: log}
	return &app{
		dir:      absDir,
		cfg:      cfg,
		store:    st,
		company:  company,
		log:      log,
		audit:    audit,
		sessions: session.NewService(st, nil, cache, opts, log),
		rules:    rules.NewService(st, log),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// record appends to the project's import log. A failed write is only
// logged.
func (a *app) record(action, sessionID, details string) {
	err := a.audit.Append(auditlog.Entry{
		CompanyID: a.company.ID,
		Action:    action,
		SessionID: sessionID,
		Details:   details,
	})
	if err != nil {
		a.log.Warn().Err(err).Str("action", action).Msg("writing import log")
	}
}

// projectPath resolves p relative to the project directory.
func projectPath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// withApp wraps a command body with project setup and teardown.
func withApp(ctx context.Context, dir string, fn func(*app) error) error {
	a, err := openApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
