// Package matching classifies parsed statement documents: it infers the
// money flow direction and resolves the counterparty, cash-flow article and
// company account for each document. The same Engine serves uploads and
// re-runs of the rules over existing drafts.
package matching

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/bankimport/internal/model"
)

// Catalog is the read-only view of company entities the engine matches
// against. *catalog.Catalog implements it.
type Catalog interface {
	Account(id string) (model.Account, bool)
	AccountByNumber(number string) (model.Account, bool)
	AccountNumbers() []string
	Article(id string) (model.Article, bool)
	ArticleByName(name string, category model.ArticleCategory) (model.Article, bool)
	Counterparty(id string) (model.Counterparty, bool)
	CounterpartyByTaxID(taxID string) (model.Counterparty, bool)
	Counterparties() []model.Counterparty
}

// UsageRecorder bumps a rule's usage counter. Implementations must make the
// increment atomic.
type UsageRecorder interface {
	IncrementRuleUsage(ctx context.Context, companyID, ruleID string, at time.Time) error
}

// Defaults for Options.
const (
	DefaultFuzzyThreshold     = 0.80
	DefaultFuzzyMaxCandidates = 1000
)

// Options configure an Engine. Zero values select defaults.
type Options struct {
	CompanyID          string
	CompanyTaxID       string
	Catalog            Catalog
	Rules              []model.MappingRule
	Taxonomy           *Taxonomy
	Usage              UsageRecorder
	Scorer             Scorer
	FuzzyThreshold     float64
	FuzzyMaxCandidates int
	Log                zerolog.Logger
	Now                func() time.Time
}

// Engine matches documents for one company against a fixed snapshot of its
// catalog and rules. It is safe for concurrent use if its UsageRecorder is.
type Engine struct {
	companyID     string
	companyTaxID  string
	catalog       Catalog
	rules         map[model.TargetType][]compiledRule
	taxonomy      *Taxonomy
	usage         UsageRecorder
	scorer        Scorer
	threshold     float64
	maxCandidates int
	ownAccounts   map[string]bool
	log           zerolog.Logger
	now           func() time.Time
}

type compiledRule struct {
	model.MappingRule
	re      *regexp.Regexp // regex rules only
	aliases []string       // alias rules only, normalized
}

// New builds an Engine. Regex rules whose pattern does not compile are
// dropped with a warning.
func New(opts Options) *Engine {
	e := &Engine{
		companyID:     opts.CompanyID,
		companyTaxID:  stripSpaces(opts.CompanyTaxID),
		catalog:       opts.Catalog,
		taxonomy:      opts.Taxonomy,
		usage:         opts.Usage,
		scorer:        opts.Scorer,
		threshold:     opts.FuzzyThreshold,
		maxCandidates: opts.FuzzyMaxCandidates,
		log:           opts.Log,
		now:           opts.Now,
		ownAccounts:   map[string]bool{},
	}
	if e.taxonomy == nil {
		e.taxonomy = DefaultTaxonomy()
	}
	if e.scorer == nil {
		e.scorer = LevenshteinSimilarity
	}
	if e.threshold == 0 {
		e.threshold = DefaultFuzzyThreshold
	}
	if e.maxCandidates == 0 {
		e.maxCandidates = DefaultFuzzyMaxCandidates
	}
	if e.now == nil {
		e.now = time.Now
	}
	for _, n := range opts.Catalog.AccountNumbers() {
		e.ownAccounts[n] = true
	}
	e.rules = compileRules(opts.Rules, e.log)
	return e
}

// WithUsage returns a copy of e that records rule usage through u, for
// example inside a storage transaction.
func (e *Engine) WithUsage(u UsageRecorder) *Engine {
	c := *e
	c.usage = u
	return &c
}

func compileRules(rules []model.MappingRule, log zerolog.Logger) map[model.TargetType][]compiledRule {
	sorted := append([]model.MappingRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := map[model.TargetType][]compiledRule{}
	for _, r := range sorted {
		cr := compiledRule{MappingRule: r}
		switch r.RuleType {
		case model.RuleRegex:
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				log.Warn().Err(err).Str("rule_id", r.ID).Str("pattern", r.Pattern).Msg("skipping rule with invalid regex")
				continue
			}
			cr.re = re
		case model.RuleAlias:
			cr.aliases = splitAliases(r.Pattern)
		}
		out[r.TargetType] = append(out[r.TargetType], cr)
	}
	return out
}

func (e *Engine) recordUsage(ctx context.Context, r compiledRule) {
	if e.usage == nil {
		return
	}
	if err := e.usage.IncrementRuleUsage(ctx, e.companyID, r.ID, e.now()); err != nil {
		e.log.Warn().Err(err).Str("rule_id", r.ID).Msg("recording rule usage")
	}
}

// Match is the outcome of one matcher.
type Match struct {
	ID     string
	By     model.MatchedBy
	RuleID string
}

// Found reports whether the matcher resolved an entity.
func (m Match) Found() bool { return m.ID != "" }
