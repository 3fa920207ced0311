package matching

import (
	"context"

	"github.com/cleared-dev/bankimport/internal/model"
)

// MatchAccount resolves the company account the money moved through: the
// document's own account field for the direction, then the statement header
// account, then account rules. Transfers are left to the posting step.
func (e *Engine) MatchAccount(ctx context.Context, doc model.ParsedDocument, d model.Direction, headerAccount string) Match {
	var numbers []string
	switch d {
	case model.DirectionTransfer:
		return Match{}
	case model.DirectionExpense:
		numbers = []string{doc.PayerAccount}
	case model.DirectionIncome:
		numbers = []string{doc.ReceiverAccount}
	default:
		numbers = []string{doc.PayerAccount, doc.ReceiverAccount}
	}
	numbers = append(numbers, headerAccount)

	for _, n := range numbers {
		if n == "" {
			continue
		}
		if a, ok := e.catalog.AccountByNumber(n); ok {
			return Match{ID: a.ID, By: model.MatchedByAccountNum}
		}
	}

	accept := func(id string) bool {
		a, ok := e.catalog.Account(id)
		return ok && a.Active
	}
	if r, ok := e.evalRules(ctx, model.TargetAccount, doc, sideFor(d), accept); ok {
		return Match{ID: r.TargetID, By: model.MatchedByRule, RuleID: r.ID}
	}
	return Match{}
}
