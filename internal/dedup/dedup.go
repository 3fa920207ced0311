// Package dedup flags statement documents that were already posted to the
// ledger or are already waiting as drafts in another import session.
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/bankimport/internal/model"
)

// Window bounds a candidate search.
type Window struct {
	From      time.Time
	To        time.Time
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// Source supplies duplicate candidates. Implementations must scope every
// query to companyID.
type Source interface {
	FindPostedOperations(ctx context.Context, companyID string, w Window) ([]model.Operation, error)
	// FindPendingDrafts returns unprocessed drafts outside excludeSessionID.
	FindPendingDrafts(ctx context.Context, companyID, excludeSessionID string, w Window) ([]model.ImportedOperation, error)
	ExistingOperationHashes(ctx context.Context, companyID string, hashes []string) (map[string]bool, error)
}

// Verdict is the outcome for one document.
type Verdict struct {
	Duplicate bool
	OfID      string
	Source    model.DuplicateSource
	Reason    string
}

// Comparison constants. They are kept as found in production data and
// should not be tuned without product input.
const (
	DefaultWindowDays = 2
	descPrefixPosted  = 50
	minDescLenPosted  = 10
	namePrefixPending = 20
	descPrefixPending = 30
	day               = 24 * time.Hour
)

var docNumberRe = regexp.MustCompile(`№\s*(\d+)`)

// Detector compares documents against posted operations (stage 1) and
// pending drafts (stage 2).
type Detector struct {
	source      Source
	windowDays  int
	ignoreTaxID string
}

// Options configure a Detector.
type Options struct {
	WindowDays int // 0 selects DefaultWindowDays
	// IgnoreTaxID, when set, never counts as a shared tax id. Empty keeps
	// the plain rule where either matching tax id flags a pending draft.
	IgnoreTaxID string
}

// New creates a Detector.
func New(source Source, opts Options) *Detector {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	return &Detector{source: source, windowDays: opts.WindowDays, ignoreTaxID: strings.TrimSpace(opts.IgnoreTaxID)}
}

// Check runs both stages for a single document.
func (d *Detector) Check(ctx context.Context, companyID, sessionID string, doc model.ParsedDocument) (Verdict, error) {
	v, err := d.CheckBatch(ctx, companyID, sessionID, []model.ParsedDocument{doc})
	if err != nil {
		return Verdict{}, err
	}
	return v[0], nil
}

// CheckBatch fetches candidates once for the whole span of docs and filters
// them per document in memory. Verdicts are returned in input order.
func (d *Detector) CheckBatch(ctx context.Context, companyID, sessionID string, docs []model.ParsedDocument) ([]Verdict, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	w := d.span(docs)

	posted, err := d.source.FindPostedOperations(ctx, companyID, w)
	if err != nil {
		return nil, fmt.Errorf("finding posted operations: %w", err)
	}
	pending, err := d.source.FindPendingDrafts(ctx, companyID, sessionID, w)
	if err != nil {
		return nil, fmt.Errorf("finding pending drafts: %w", err)
	}

	out := make([]Verdict, len(docs))
	for i, doc := range docs {
		out[i] = d.verdict(doc, posted, pending)
	}
	return out, nil
}

func (d *Detector) verdict(doc model.ParsedDocument, posted []model.Operation, pending []model.ImportedOperation) Verdict {
	for _, op := range posted {
		if !op.Amount.Equal(doc.Amount) || !d.inWindow(doc.Date, op.Date) {
			continue
		}
		if descPrefixMatch(doc.Purpose, op.Description) {
			return Verdict{Duplicate: true, OfID: op.ID, Source: model.DuplicateOfOperation, Reason: "description prefix"}
		}
	}
	for _, dr := range pending {
		if !dr.Source.Amount.Equal(doc.Amount) || !d.inWindow(doc.Date, dr.Source.Date) {
			continue
		}
		if reason := d.pendingMatch(doc, dr.Source); reason != "" {
			return Verdict{Duplicate: true, OfID: dr.ID, Source: model.DuplicateOfDraft, Reason: reason}
		}
	}
	return Verdict{}
}

// HashPrecheck counts documents whose content hash already belongs to a
// posted operation. It is a summary for the upload response only.
func (d *Detector) HashPrecheck(ctx context.Context, companyID string, docs []model.ParsedDocument) (int, error) {
	hashes := make([]string, 0, len(docs))
	for _, doc := range docs {
		h := doc.Hash
		if h == "" {
			h = doc.ContentHash()
		}
		hashes = append(hashes, h)
	}
	existing, err := d.source.ExistingOperationHashes(ctx, companyID, hashes)
	if err != nil {
		return 0, fmt.Errorf("checking content hashes: %w", err)
	}
	n := 0
	for _, h := range hashes {
		if existing[h] {
			n++
		}
	}
	return n, nil
}

func (d *Detector) span(docs []model.ParsedDocument) Window {
	w := Window{
		From:      docs[0].Date,
		To:        docs[0].Date,
		MinAmount: docs[0].Amount,
		MaxAmount: docs[0].Amount,
	}
	for _, doc := range docs[1:] {
		if doc.Date.Before(w.From) {
			w.From = doc.Date
		}
		if doc.Date.After(w.To) {
			w.To = doc.Date
		}
		if doc.Amount.LessThan(w.MinAmount) {
			w.MinAmount = doc.Amount
		}
		if doc.Amount.GreaterThan(w.MaxAmount) {
			w.MaxAmount = doc.Amount
		}
	}
	pad := time.Duration(d.windowDays) * day
	w.From = dateOnly(w.From).Add(-pad)
	w.To = dateOnly(w.To).Add(pad)
	return w
}

func (d *Detector) inWindow(a, b time.Time) bool {
	diff := dateOnly(a).Sub(dateOnly(b))
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(d.windowDays)*day
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// descPrefixMatch compares the first min(50, lenA, lenB) characters of two
// normalized descriptions, both longer than 10 characters.
func descPrefixMatch(a, b string) bool {
	ra := []rune(model.NormalizeText(a))
	rb := []rune(model.NormalizeText(b))
	if len(ra) <= minDescLenPosted || len(rb) <= minDescLenPosted {
		return false
	}
	n := min(descPrefixPosted, len(ra), len(rb))
	return string(ra[:n]) == string(rb[:n])
}

func (d *Detector) pendingMatch(a, b model.ParsedDocument) string {
	if numbersMatch(a, b) {
		return "document number"
	}
	if d.sameTaxID(a.PayerTaxID, b.PayerTaxID) || d.sameTaxID(a.ReceiverTaxID, b.ReceiverTaxID) {
		return "tax id"
	}

	payer := partialMatch(a.Payer, b.Payer, namePrefixPending)
	receiver := partialMatch(a.Receiver, b.Receiver, namePrefixPending)
	if !payer && !receiver {
		return ""
	}
	// A tax id match would also qualify here but has already returned above.
	if partialMatch(a.Purpose, b.Purpose, descPrefixPending) || (payer && receiver) {
		return "name and description"
	}
	return ""
}

func (d *Detector) sameTaxID(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && a == strings.TrimSpace(b) && (d.ignoreTaxID == "" || a != d.ignoreTaxID)
}

func numbersMatch(a, b model.ParsedDocument) bool {
	na, nb := docNumbers(a), docNumbers(b)
	for n := range na {
		if nb[n] {
			return true
		}
	}
	return false
}

// docNumbers collects the document number and any "№ 123" references in
// the purpose.
func docNumbers(doc model.ParsedDocument) map[string]bool {
	out := map[string]bool{}
	if n := strings.TrimSpace(doc.Number); n != "" {
		out[n] = true
	}
	for _, m := range docNumberRe.FindAllStringSubmatch(doc.Purpose, -1) {
		out[m[1]] = true
	}
	return out
}

// partialMatch reports whether the first n characters of either normalized
// string occur in the other.
func partialMatch(a, b string, n int) bool {
	a, b = model.NormalizeText(a), model.NormalizeText(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(b, prefix(a, n)) || strings.Contains(a, prefix(b, n))
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
