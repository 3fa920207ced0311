package matching

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Scorer returns a similarity between 0 (unrelated) and 1 (identical).
type Scorer func(a, b string) float64

var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// LevenshteinSimilarity is 1 - distance/longest, computed over runes.
func LevenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	d := levenshtein.DistanceForStrings(ra, rb, unitCost)
	return 1 - float64(d)/float64(longest)
}

var nameQuotes = strings.NewReplacer(
	"\"", " ", "'", " ", "«", " ", "»", " ", "„", " ", "“", " ", "”", " ", "`", " ",
)

var longLegalForms = []string{
	"общество с ограниченной ответственностью",
	"публичное акционерное общество",
	"закрытое акционерное общество",
	"открытое акционерное общество",
	"непубличное акционерное общество",
	"акционерное общество",
	"индивидуальный предприниматель",
}

var shortLegalForms = map[string]bool{
	"ооо": true, "оао": true, "зао": true, "пао": true, "ао": true,
	"ип": true, "нао": true, "ано": true, "нко": true, "llc": true, "ltd": true,
}

// NormalizeName lower-cases a company name and drops quotes and legal forms
// so "ООО «Ромашка»" and "Ромашка" compare equal.
func NormalizeName(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "ё", "е")
	s = nameQuotes.Replace(s)
	for _, f := range longLegalForms {
		s = strings.ReplaceAll(s, f, " ")
	}
	var kept []string
	for _, w := range strings.Fields(s) {
		if !shortLegalForms[strings.Trim(w, ".,")] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// normalizeText lower-cases, folds ё and collapses whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(strings.ToLower(s), "ё", "е")), " ")
}
