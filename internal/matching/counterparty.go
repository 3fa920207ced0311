package matching

import (
	"context"

	"github.com/cleared-dev/bankimport/internal/model"
)

// scoreEpsilon absorbs float error when a score sits exactly on the threshold.
const scoreEpsilon = 1e-9

// MatchCounterparty resolves the document's counterparty: exact tax id, then
// rules, then fuzzy name similarity. Transfers have no counterparty. For an
// undetermined direction the receiver side is tried before the payer side.
func (e *Engine) MatchCounterparty(ctx context.Context, doc model.ParsedDocument, d model.Direction) Match {
	switch d {
	case model.DirectionTransfer:
		return Match{}
	case model.DirectionUndetermined:
		if m := e.matchCounterpartySide(ctx, doc, sideReceiver); m.Found() {
			return m
		}
		return e.matchCounterpartySide(ctx, doc, sidePayer)
	}
	return e.matchCounterpartySide(ctx, doc, sideFor(d))
}

func (e *Engine) matchCounterpartySide(ctx context.Context, doc model.ParsedDocument, s side) Match {
	taxID, name := doc.ReceiverTaxID, doc.Receiver
	if s == sidePayer {
		taxID, name = doc.PayerTaxID, doc.Payer
	}

	if taxID = stripSpaces(taxID); taxID != "" && taxID != e.companyTaxID {
		if cp, ok := e.catalog.CounterpartyByTaxID(taxID); ok {
			return Match{ID: cp.ID, By: model.MatchedByTaxID}
		}
	}

	if r, ok := e.evalRules(ctx, model.TargetCounterparty, doc, s, e.counterpartyActive); ok {
		return Match{ID: r.TargetID, By: model.MatchedByRule, RuleID: r.ID}
	}

	return e.fuzzyCounterparty(name)
}

func (e *Engine) counterpartyActive(id string) bool {
	cp, ok := e.catalog.Counterparty(id)
	return ok && cp.Active
}

func (e *Engine) fuzzyCounterparty(name string) Match {
	target := NormalizeName(name)
	if target == "" {
		return Match{}
	}
	candidates := e.catalog.Counterparties()
	if len(candidates) >= e.maxCandidates {
		e.log.Debug().Int("candidates", len(candidates)).Msg("skipping fuzzy counterparty match")
		return Match{}
	}

	var best model.Counterparty
	bestScore := -1.0
	for _, cp := range candidates {
		score := e.scorer(target, NormalizeName(cp.Name))
		if score > bestScore {
			best, bestScore = cp, score
		}
	}
	if bestScore+scoreEpsilon < e.threshold {
		return Match{}
	}
	return Match{ID: best.ID, By: model.MatchedByFuzzy}
}
