package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/cleared-dev/bankimport/internal/model"
)

var (
	accountHeader      = []string{"id", "name", "number", "currency", "active"}
	articleHeader      = []string{"id", "name", "category", "active"}
	counterpartyHeader = []string{"id", "name", "tax_id", "active"}
)

// ReadAccounts reads accounts.csv.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	return readRows(r, len(accountHeader), func(rec []string) (model.Account, error) {
		active, err := parseActive(rec[4])
		if err != nil {
			return model.Account{}, err
		}
		return model.Account{ID: rec[0], Name: rec[1], Number: rec[2], Currency: rec[3], Active: active}, nil
	})
}

// WriteAccounts writes accounts.csv.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	return writeRows(w, accountHeader, accounts, func(a model.Account) []string {
		return []string{a.ID, a.Name, a.Number, a.Currency, strconv.FormatBool(a.Active)}
	})
}

// ReadArticles reads articles.csv.
func ReadArticles(r io.Reader) ([]model.Article, error) {
	return readRows(r, len(articleHeader), func(rec []string) (model.Article, error) {
		cat := model.ArticleCategory(rec[2])
		if cat != model.ArticleIncome && cat != model.ArticleExpense {
			return model.Article{}, fmt.Errorf("invalid category %q", rec[2])
		}
		active, err := parseActive(rec[3])
		if err != nil {
			return model.Article{}, err
		}
		return model.Article{ID: rec[0], Name: rec[1], Category: cat, Active: active}, nil
	})
}

// WriteArticles writes articles.csv.
func WriteArticles(w io.Writer, articles []model.Article) error {
	return writeRows(w, articleHeader, articles, func(a model.Article) []string {
		return []string{a.ID, a.Name, string(a.Category), strconv.FormatBool(a.Active)}
	})
}

// ReadCounterparties reads counterparties.csv.
func ReadCounterparties(r io.Reader) ([]model.Counterparty, error) {
	return readRows(r, len(counterpartyHeader), func(rec []string) (model.Counterparty, error) {
		active, err := parseActive(rec[3])
		if err != nil {
			return model.Counterparty{}, err
		}
		return model.Counterparty{ID: rec[0], Name: rec[1], TaxID: rec[2], Active: active}, nil
	})
}

// WriteCounterparties writes counterparties.csv.
func WriteCounterparties(w io.Writer, counterparties []model.Counterparty) error {
	return writeRows(w, counterpartyHeader, counterparties, func(c model.Counterparty) []string {
		return []string{c.ID, c.Name, c.TaxID, strconv.FormatBool(c.Active)}
	})
}

func readRows[T any](r io.Reader, numFields int, unmarshal func([]string) (T, error)) ([]T, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []T
	for i, rec := range records[1:] {
		v, err := unmarshal(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func writeRows[T any](w io.Writer, header []string, rows []T, marshal func(T) []string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(marshal(row)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseActive treats an empty column as active.
func parseActive(s string) (bool, error) {
	if s == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("parsing active %q: %w", s, err)
	}
	return b, nil
}
