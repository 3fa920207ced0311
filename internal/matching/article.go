package matching

import (
	"context"

	"github.com/cleared-dev/bankimport/internal/model"
)

// MatchArticle resolves the cash-flow article from rules, then from the
// keyword taxonomy. Transfers have no article. For an undetermined
// direction the expense hypothesis is tried before the income one; the
// returned direction is the hypothesis that produced the article.
func (e *Engine) MatchArticle(ctx context.Context, doc model.ParsedDocument, d model.Direction) (Match, model.Direction) {
	var hypotheses []model.Direction
	switch d {
	case model.DirectionIncome, model.DirectionExpense:
		hypotheses = []model.Direction{d}
	case model.DirectionUndetermined:
		hypotheses = []model.Direction{model.DirectionExpense, model.DirectionIncome}
	default:
		return Match{}, d
	}

	for _, h := range hypotheses {
		category := h.ArticleCategory()
		accept := func(id string) bool {
			a, ok := e.catalog.Article(id)
			return ok && a.Active && a.Category == category
		}
		if r, ok := e.evalRules(ctx, model.TargetArticle, doc, sideFor(h), accept); ok {
			return Match{ID: r.TargetID, By: model.MatchedByRule, RuleID: r.ID}, h
		}
	}

	for _, h := range hypotheses {
		category := h.ArticleCategory()
		for _, name := range e.taxonomy.Candidates(doc.Purpose, category) {
			if a, ok := e.catalog.ArticleByName(name, category); ok {
				return Match{ID: a.ID, By: model.MatchedByKeyword}, h
			}
		}
	}
	return Match{}, d
}
