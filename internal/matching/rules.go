package matching

import (
	"context"
	"strings"

	"github.com/cleared-dev/bankimport/internal/model"
)

// ruleOrder is the evaluation order of rule types.
var ruleOrder = []model.RuleType{model.RuleEquals, model.RuleAlias, model.RuleRegex, model.RuleContains}

// side is the counterparty side assumed for the document.
type side int

const (
	sideReceiver side = iota // company pays: counterparty receives
	sidePayer                // company receives: counterparty pays
)

func sideFor(d model.Direction) side {
	if d == model.DirectionIncome {
		return sidePayer
	}
	return sideReceiver
}

func sourceValue(f model.SourceField, doc model.ParsedDocument, s side) string {
	switch f {
	case model.SourcePayer:
		return doc.Payer
	case model.SourceReceiver:
		return doc.Receiver
	case model.SourceTaxID:
		if s == sidePayer {
			return doc.PayerTaxID
		}
		return doc.ReceiverTaxID
	default:
		return doc.Purpose
	}
}

func (r compiledRule) matches(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	switch r.RuleType {
	case model.RuleEquals:
		return normalizeText(value) == normalizeText(r.Pattern)
	case model.RuleAlias:
		name := NormalizeName(value)
		for _, a := range r.aliases {
			if a == name {
				return true
			}
		}
	case model.RuleRegex:
		return r.re.MatchString(value)
	case model.RuleContains:
		p := normalizeText(r.Pattern)
		return p != "" && strings.Contains(normalizeText(value), p)
	}
	return false
}

// splitAliases splits an alias pattern on ';' or '|'.
func splitAliases(pattern string) []string {
	parts := strings.FieldsFunc(pattern, func(r rune) bool { return r == ';' || r == '|' })
	var out []string
	for _, p := range parts {
		if n := NormalizeName(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// evalRules walks rules of target in priority order and returns the first
// one whose target passes accept. Only that rule's usage is recorded.
func (e *Engine) evalRules(ctx context.Context, target model.TargetType, doc model.ParsedDocument, s side, accept func(targetID string) bool) (compiledRule, bool) {
	rules := e.rules[target]
	for _, rt := range ruleOrder {
		if rt == model.RuleAlias && target != model.TargetCounterparty {
			continue
		}
		for _, r := range rules {
			if r.RuleType != rt {
				continue
			}
			if !r.matches(sourceValue(r.SourceField, doc, s)) {
				continue
			}
			if !accept(r.TargetID) {
				continue
			}
			e.recordUsage(ctx, r)
			return r, true
		}
	}
	return compiledRule{}, false
}
