package matching

import (
	"context"

	"github.com/cleared-dev/bankimport/internal/model"
)

// Result is the combined classification of one document.
type Result struct {
	Direction     model.Direction
	Counterparty  Match
	Article       Match
	Account       Match
	MatchedBy     model.MatchedBy // set only when FullyMatched
	MatchedRuleID string
}

// FullyMatched reports whether article and account were both resolved.
func (r Result) FullyMatched() bool {
	return r.Article.Found() && r.Account.Found()
}

// AutoMatch runs the classifier and all three matchers once.
func (e *Engine) AutoMatch(ctx context.Context, doc model.ParsedDocument, headerAccount string) Result {
	return e.MatchAs(ctx, doc, headerAccount, model.DirectionUndetermined)
}

// MatchAs is AutoMatch with a known direction, such as one a reviewer
// locked on the draft. An undetermined d is classified as usual.
func (e *Engine) MatchAs(ctx context.Context, doc model.ParsedDocument, headerAccount string, d model.Direction) Result {
	if !d.Determined() {
		d = e.ClassifyDirection(doc)
	}
	if d == model.DirectionUndetermined {
		d = e.directionFromRules(ctx, doc)
	}

	var res Result
	res.Article, res.Direction = e.MatchArticle(ctx, doc, d)
	res.Counterparty = e.MatchCounterparty(ctx, doc, res.Direction)
	res.Account = e.MatchAccount(ctx, doc, res.Direction, headerAccount)

	if res.FullyMatched() {
		res.MatchedBy, res.MatchedRuleID = provenance(res.Counterparty, res.Article, res.Account)
	}
	return res
}

// directionFromRules lets operationType rules settle a direction the tax id
// and account signals could not.
func (e *Engine) directionFromRules(ctx context.Context, doc model.ParsedDocument) model.Direction {
	accept := func(id string) bool {
		d, ok := model.ParseDirection(id)
		return ok && d.Determined()
	}
	r, ok := e.evalRules(ctx, model.TargetOperationType, doc, sideReceiver, accept)
	if !ok {
		return model.DirectionUndetermined
	}
	d, _ := model.ParseDirection(r.TargetID)
	return d
}

// provenance picks matchedBy with priority rule > keyword > tax id > fuzzy >
// account number. A counterparty rule id wins over an article one.
func provenance(cp, art, acc Match) (model.MatchedBy, string) {
	switch {
	case cp.By == model.MatchedByRule:
		return model.MatchedByRule, cp.RuleID
	case art.By == model.MatchedByRule:
		return model.MatchedByRule, art.RuleID
	case acc.By == model.MatchedByRule:
		return model.MatchedByRule, acc.RuleID
	case art.By == model.MatchedByKeyword:
		return model.MatchedByKeyword, ""
	case cp.By == model.MatchedByTaxID:
		return model.MatchedByTaxID, ""
	case cp.By == model.MatchedByFuzzy:
		return model.MatchedByFuzzy, ""
	}
	return model.MatchedByAccountNum, ""
}
