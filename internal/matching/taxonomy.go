package matching

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/bankimport/internal/model"
)

// TaxonomyEntry maps keywords found in a payment purpose to candidate
// article names of one category.
type TaxonomyEntry struct {
	Category model.ArticleCategory `yaml:"category"`
	Keywords []string              `yaml:"keywords"`
	Articles []string              `yaml:"articles"`
	// TaxRemittance entries are suppressed when the purpose only discloses
	// VAT inside a commercial payment: a VAT disclosure is present, no
	// remittance phrase is, and the only keywords hit are VAT ones (those
	// appearing inside a disclosure phrase).
	TaxRemittance bool `yaml:"tax_remittance,omitempty"`
}

// Taxonomy is an ordered, immutable keyword table for article matching.
type Taxonomy struct {
	entries           []TaxonomyEntry
	taxKeywords       [][]string // per entry, keywords that are not VAT ones
	vatDisclosures    []string
	remittancePhrases []string
}

type taxonomyFile struct {
	Entries           []TaxonomyEntry `yaml:"entries"`
	VATDisclosures    []string        `yaml:"vat_disclosures"`
	RemittancePhrases []string        `yaml:"remittance_phrases"`
}

// NewTaxonomy copies and normalizes the given table.
func NewTaxonomy(entries []TaxonomyEntry, vatDisclosures, remittancePhrases []string) *Taxonomy {
	t := &Taxonomy{
		vatDisclosures:    normalizeAll(vatDisclosures),
		remittancePhrases: normalizeAll(remittancePhrases),
	}
	for _, e := range entries {
		keywords := normalizeAll(e.Keywords)
		var strong []string
		for _, k := range keywords {
			if !t.vatKeyword(k) {
				strong = append(strong, k)
			}
		}
		t.entries = append(t.entries, TaxonomyEntry{
			Category:      e.Category,
			Keywords:      keywords,
			Articles:      append([]string(nil), e.Articles...),
			TaxRemittance: e.TaxRemittance,
		})
		t.taxKeywords = append(t.taxKeywords, strong)
	}
	return t
}

func (t *Taxonomy) vatKeyword(k string) bool {
	for _, d := range t.vatDisclosures {
		if strings.Contains(d, k) {
			return true
		}
	}
	return false
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalizeText(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ParseTaxonomy reads a YAML taxonomy. Missing VAT lists fall back to the
// built-in ones.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing taxonomy: %w", err)
	}
	for i, e := range f.Entries {
		if e.Category != model.ArticleIncome && e.Category != model.ArticleExpense {
			return nil, fmt.Errorf("taxonomy entry %d: invalid category %q", i+1, e.Category)
		}
		if len(e.Keywords) == 0 || len(e.Articles) == 0 {
			return nil, fmt.Errorf("taxonomy entry %d: keywords and articles are required", i+1)
		}
	}
	if f.VATDisclosures == nil {
		f.VATDisclosures = defaultVATDisclosures
	}
	if f.RemittancePhrases == nil {
		f.RemittancePhrases = defaultRemittancePhrases
	}
	return NewTaxonomy(f.Entries, f.VATDisclosures, f.RemittancePhrases), nil
}

// LoadTaxonomy reads a YAML taxonomy file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

// Candidates returns article names suggested by purpose for category, in
// table order.
func (t *Taxonomy) Candidates(purpose string, category model.ArticleCategory) []string {
	text := normalizeText(purpose)
	if text == "" {
		return nil
	}
	vatOnly := containsAny(text, t.vatDisclosures) && !containsAny(text, t.remittancePhrases)

	var out []string
	for i, e := range t.entries {
		if e.Category != category {
			continue
		}
		if e.TaxRemittance && vatOnly && !containsAny(text, t.taxKeywords[i]) {
			continue
		}
		if containsAny(text, e.Keywords) {
			out = append(out, e.Articles...)
		}
	}
	return out
}

// Entries returns a copy of the table.
func (t *Taxonomy) Entries() []TaxonomyEntry {
	return append([]TaxonomyEntry(nil), t.entries...)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

var defaultVATDisclosures = []string{
	"в т.ч. ндс",
	"в т.ч ндс",
	"в т. ч. ндс",
	"втч ндс",
	"в том числе ндс",
	"включая ндс",
	"ндс не облагается",
	"без ндс",
	"сумма ндс",
}

var defaultRemittancePhrases = []string{
	"уплата ндс",
	"налог на добавленную стоимость",
	"единый налоговый платеж",
	"енп",
}

// DefaultTaxonomy returns the built-in table. Article names match
// catalog.DefaultArticles.
func DefaultTaxonomy() *Taxonomy {
	return NewTaxonomy([]TaxonomyEntry{
		{
			Category:      model.ArticleExpense,
			Keywords:      []string{"ндс", "налог", "енп", "страховые взносы", "госпошлин"},
			Articles:      []string{"Налоги и сборы", "Налоги"},
			TaxRemittance: true,
		},
		{
			Category: model.ArticleExpense,
			Keywords: []string{"заработн", "зарплат", "оплата труда", "отпускные"},
			Articles: []string{"Заработная плата", "Зарплата"},
		},
		{
			Category: model.ArticleExpense,
			Keywords: []string{"аренд"},
			Articles: []string{"Аренда"},
		},
		{
			Category: model.ArticleExpense,
			Keywords: []string{"комисси", "обслуживание счета", "расчетно-кассовое", "за ведение счета"},
			Articles: []string{"Банковские комиссии", "Услуги банка"},
		},
		{
			Category: model.ArticleExpense,
			Keywords: []string{"услуги связи", "интернет", "телефон"},
			Articles: []string{"Связь и интернет"},
		},
		{
			Category: model.ArticleExpense,
			Keywords: []string{"коммунальн", "электроэнерг", "водоснабж", "теплоснабж", "вывоз тко"},
			Articles: []string{"Коммунальные услуги"},
		},
		{
			Category: model.ArticleExpense,
			Keywords: []string{"погашение кредит", "погашение займ", "проценты по кредит", "возврат займа"},
			Articles: []string{"Погашение займов", "Кредиты и займы"},
		},
		{
			Category: model.ArticleExpense,
			Keywords: []string{"товар", "поставк", "материал"},
			Articles: []string{"Закупка товаров", "Оплата поставщикам"},
		},
		{
			Category: model.ArticleIncome,
			Keywords: []string{"проценты на остаток", "начисленные проценты", "выплата процентов", "капитализаци"},
			Articles: []string{"Проценты банка"},
		},
		{
			Category: model.ArticleIncome,
			Keywords: []string{"предоставление кредит", "выдача кредит", "предоставление займ", "по договору займа"},
			Articles: []string{"Получение займов", "Кредиты и займы"},
		},
		{
			Category: model.ArticleIncome,
			Keywords: []string{"возврат"},
			Articles: []string{"Возврат средств"},
		},
		{
			Category: model.ArticleIncome,
			Keywords: []string{"оплата по сч", "оплата по договор", "реализаци", "выручк", "за товар", "за услуг", "эквайринг"},
			Articles: []string{"Выручка от реализации", "Выручка"},
		},
	}, defaultVATDisclosures, defaultRemittancePhrases)
}
