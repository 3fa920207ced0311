package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cleared-dev/bankimport/internal/model"
)

// Catalog is an in-memory snapshot of one company's accounts, articles and
// counterparties. It is built once per operation and never mutated.
type Catalog struct {
	accounts       []model.Account
	articles       []model.Article
	counterparties []model.Counterparty

	accountByID      map[string]model.Account
	accountByNumber  map[string]model.Account
	articleByID      map[string]model.Article
	counterpartyByID map[string]model.Counterparty
	counterpartyByTx map[string]model.Counterparty
}

// New creates a Catalog. Lookups by number, tax id and name only see active
// entities; lookups by id see everything so callers can tell inactive from
// missing.
func New(accounts []model.Account, articles []model.Article, counterparties []model.Counterparty) *Catalog {
	c := &Catalog{
		accounts:         accounts,
		articles:         articles,
		counterparties:   counterparties,
		accountByID:      make(map[string]model.Account, len(accounts)),
		accountByNumber:  make(map[string]model.Account, len(accounts)),
		articleByID:      make(map[string]model.Article, len(articles)),
		counterpartyByID: make(map[string]model.Counterparty, len(counterparties)),
		counterpartyByTx: make(map[string]model.Counterparty, len(counterparties)),
	}
	for _, a := range accounts {
		c.accountByID[a.ID] = a
		if a.Active && a.Number != "" {
			c.accountByNumber[a.Number] = a
		}
	}
	for _, a := range articles {
		c.articleByID[a.ID] = a
	}
	for _, cp := range counterparties {
		c.counterpartyByID[cp.ID] = cp
		if !cp.Active || cp.TaxID == "" {
			continue
		}
		if _, dup := c.counterpartyByTx[cp.TaxID]; !dup {
			c.counterpartyByTx[cp.TaxID] = cp
		}
	}
	return c
}

// Accounts returns all accounts.
func (c *Catalog) Accounts() []model.Account { return c.accounts }

// Articles returns all articles.
func (c *Catalog) Articles() []model.Article { return c.articles }

// Account returns an account by ID.
func (c *Catalog) Account(id string) (model.Account, bool) {
	a, ok := c.accountByID[id]
	return a, ok
}

// AccountByNumber returns the active account with the given 20-digit number.
func (c *Catalog) AccountByNumber(number string) (model.Account, bool) {
	a, ok := c.accountByNumber[strings.TrimSpace(number)]
	return a, ok
}

// AccountNumbers returns the numbers of all active accounts.
func (c *Catalog) AccountNumbers() []string {
	out := make([]string, 0, len(c.accountByNumber))
	for _, a := range c.accounts {
		if _, ok := c.accountByNumber[a.Number]; ok && a.Active {
			out = append(out, a.Number)
		}
	}
	return out
}

// Article returns an article by ID.
func (c *Catalog) Article(id string) (model.Article, bool) {
	a, ok := c.articleByID[id]
	return a, ok
}

// ArticleByName returns the first active article of category whose name
// matches case-insensitively.
func (c *Catalog) ArticleByName(name string, category model.ArticleCategory) (model.Article, bool) {
	for _, a := range c.articles {
		if a.Active && a.Category == category && strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return model.Article{}, false
}

// Counterparty returns a counterparty by ID.
func (c *Catalog) Counterparty(id string) (model.Counterparty, bool) {
	cp, ok := c.counterpartyByID[id]
	return cp, ok
}

// CounterpartyByTaxID returns the active counterparty with taxID.
func (c *Catalog) CounterpartyByTaxID(taxID string) (model.Counterparty, bool) {
	cp, ok := c.counterpartyByTx[strings.Join(strings.Fields(taxID), "")]
	return cp, ok
}

// Counterparties returns the active counterparties.
func (c *Catalog) Counterparties() []model.Counterparty {
	var out []model.Counterparty
	for _, cp := range c.counterparties {
		if cp.Active {
			out = append(out, cp)
		}
	}
	return out
}

// AllCounterparties returns every counterparty, inactive ones included.
func (c *Catalog) AllCounterparties() []model.Counterparty { return c.counterparties }

// Seed file names inside a catalog directory.
const (
	AccountsFile       = "accounts.csv"
	ArticlesFile       = "articles.csv"
	CounterpartiesFile = "counterparties.csv"
)

// LoadDir reads the seed CSV files from dir. Missing files are treated as
// empty.
func LoadDir(dir string) (*Catalog, error) {
	var (
		accounts       []model.Account
		articles       []model.Article
		counterparties []model.Counterparty
	)
	if err := readFile(filepath.Join(dir, AccountsFile), func(f *os.File) (err error) {
		accounts, err = ReadAccounts(f)
		return err
	}); err != nil {
		return nil, fmt.Errorf("reading accounts: %w", err)
	}
	if err := readFile(filepath.Join(dir, ArticlesFile), func(f *os.File) (err error) {
		articles, err = ReadArticles(f)
		return err
	}); err != nil {
		return nil, fmt.Errorf("reading articles: %w", err)
	}
	if err := readFile(filepath.Join(dir, CounterpartiesFile), func(f *os.File) (err error) {
		counterparties, err = ReadCounterparties(f)
		return err
	}); err != nil {
		return nil, fmt.Errorf("reading counterparties: %w", err)
	}
	return New(accounts, articles, counterparties), nil
}

func readFile(path string, read func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return read(f)
}

// Save writes the three seed files into dir.
func (c *Catalog) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating catalog dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, AccountsFile), func(f *os.File) error {
		return WriteAccounts(f, c.accounts)
	}); err != nil {
		return fmt.Errorf("writing accounts: %w", err)
	}
	if err := writeFile(filepath.Join(dir, ArticlesFile), func(f *os.File) error {
		return WriteArticles(f, c.articles)
	}); err != nil {
		return fmt.Errorf("writing articles: %w", err)
	}
	if err := writeFile(filepath.Join(dir, CounterpartiesFile), func(f *os.File) error {
		return WriteCounterparties(f, c.counterparties)
	}); err != nil {
		return fmt.Errorf("writing counterparties: %w", err)
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
