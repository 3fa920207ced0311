package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/id"
	"github.com/cleared-dev/bankimport/internal/model"
)

// CreateCompany inserts c, assigning an ID when empty.
func (r Repo) CreateCompany(ctx context.Context, c *model.Company) error {
	if c.ID == "" {
		c.ID = id.New()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO companies (id, name, tax_id, active) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.TaxID, c.Active)
	if err != nil {
		return fmt.Errorf("inserting company: %w", err)
	}
	return nil
}

// CompanyByTaxID returns the company registered under taxID.
func (r Repo) CompanyByTaxID(ctx context.Context, taxID string) (model.Company, error) {
	var c model.Company
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, tax_id, active FROM companies WHERE tax_id = ?`, taxID,
	).Scan(&c.ID, &c.Name, &c.TaxID, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Company{}, fmt.Errorf("company %s: %w", taxID, ErrNotFound)
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("querying company: %w", err)
	}
	return c, nil
}

// GetCompany returns a company by id.
func (r Repo) GetCompany(ctx context.Context, companyID string) (model.Company, error) {
	var c model.Company
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, tax_id, active FROM companies WHERE id = ?`, companyID,
	).Scan(&c.ID, &c.Name, &c.TaxID, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Company{}, fmt.Errorf("company %s: %w", companyID, ErrNotFound)
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("querying company: %w", err)
	}
	return c, nil
}

// SaveAccounts upserts accounts for companyID. Empty IDs are assigned.
func (r Repo) SaveAccounts(ctx context.Context, companyID string, accounts []model.Account) error {
	for i := range accounts {
		a := &accounts[i]
		if a.ID == "" {
			a.ID = id.New()
		}
		a.CompanyID = companyID
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO accounts (id, company_id, name, number, currency, active)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				number = excluded.number,
				currency = excluded.currency,
				active = excluded.active
			WHERE accounts.company_id = excluded.company_id`,
			a.ID, companyID, a.Name, a.Number, a.Currency, a.Active)
		if err != nil {
			return fmt.Errorf("saving account %s: %w", a.Name, err)
		}
	}
	return nil
}

// SaveArticles upserts articles for companyID. Empty IDs are assigned.
func (r Repo) SaveArticles(ctx context.Context, companyID string, articles []model.Article) error {
	for i := range articles {
		a := &articles[i]
		if a.ID == "" {
			a.ID = id.New()
		}
		a.CompanyID = companyID
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO articles (id, company_id, name, category, active)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				active = excluded.active
			WHERE articles.company_id = excluded.company_id`,
			a.ID, companyID, a.Name, string(a.Category), a.Active)
		if err != nil {
			return fmt.Errorf("saving article %s: %w", a.Name, err)
		}
	}
	return nil
}

// SaveCounterparties upserts counterparties for companyID. Empty IDs are
// assigned.
func (r Repo) SaveCounterparties(ctx context.Context, companyID string, counterparties []model.Counterparty) error {
	for i := range counterparties {
		c := &counterparties[i]
		if c.ID == "" {
			c.ID = id.New()
		}
		c.CompanyID = companyID
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO counterparties (id, company_id, name, tax_id, active)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				tax_id = excluded.tax_id,
				active = excluded.active
			WHERE counterparties.company_id = excluded.company_id`,
			c.ID, companyID, c.Name, c.TaxID, c.Active)
		if err != nil {
			return fmt.Errorf("saving counterparty %s: %w", c.Name, err)
		}
	}
	return nil
}

// LoadCatalog snapshots the company's accounts, articles and counterparties.
func (r Repo) LoadCatalog(ctx context.Context, companyID string) (*catalog.Catalog, error) {
	accounts, err := queryAll(ctx, r.q,
		`SELECT id, company_id, name, number, currency, active FROM accounts WHERE company_id = ? ORDER BY name, id`,
		[]any{companyID}, func(s scanner) (model.Account, error) {
			var a model.Account
			err := s.Scan(&a.ID, &a.CompanyID, &a.Name, &a.Number, &a.Currency, &a.Active)
			return a, err
		})
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}

	articles, err := queryAll(ctx, r.q,
		`SELECT id, company_id, name, category, active FROM articles WHERE company_id = ? ORDER BY name, id`,
		[]any{companyID}, func(s scanner) (model.Article, error) {
			var a model.Article
			var cat string
			err := s.Scan(&a.ID, &a.CompanyID, &a.Name, &cat, &a.Active)
			a.Category = model.ArticleCategory(cat)
			return a, err
		})
	if err != nil {
		return nil, fmt.Errorf("loading articles: %w", err)
	}

	counterparties, err := queryAll(ctx, r.q,
		`SELECT id, company_id, name, tax_id, active FROM counterparties WHERE company_id = ? ORDER BY name, id`,
		[]any{companyID}, func(s scanner) (model.Counterparty, error) {
			var c model.Counterparty
			err := s.Scan(&c.ID, &c.CompanyID, &c.Name, &c.TaxID, &c.Active)
			return c, err
		})
	if err != nil {
		return nil, fmt.Errorf("loading counterparties: %w", err)
	}

	return catalog.New(accounts, articles, counterparties), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func queryAll[T any](ctx context.Context, q querier, query string, args []any, scan func(scanner) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
