package model

import (
	"sort"
	"strings"
	"time"
)

// SessionStatus is derived from a session's counters, never set directly.
type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionConfirmed SessionStatus = "confirmed"
	SessionProcessed SessionStatus = "processed"
)

// ImportSession groups the drafts created from one uploaded statement.
type ImportSession struct {
	ID             string
	CompanyID      string
	FileName       string
	CompanyAccount string // account number declared in the statement header
	Encoding       string
	Status         SessionStatus
	ImportedCount  int
	ConfirmedCount int
	ProcessedCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Recompute derives Status from the counters.
func (s *ImportSession) Recompute() {
	switch {
	case s.ImportedCount > 0 && s.ProcessedCount == s.ImportedCount:
		s.Status = SessionProcessed
	case s.ConfirmedCount > 0:
		s.Status = SessionConfirmed
	default:
		s.Status = SessionDraft
	}
}

// MatchedBy records which matching stage produced a full match.
type MatchedBy string

const (
	MatchedNone         MatchedBy = ""
	MatchedByRule       MatchedBy = "rule"
	MatchedByKeyword    MatchedBy = "keyword"
	MatchedByTaxID      MatchedBy = "inn"
	MatchedByFuzzy      MatchedBy = "fuzzy"
	MatchedByAccountNum MatchedBy = "account_number"
	MatchedByManual     MatchedBy = "manual"
)

// DuplicateSource tells whether a duplicate points at a posted operation or
// at another pending draft.
type DuplicateSource string

const (
	DuplicateOfOperation DuplicateSource = "operation"
	DuplicateOfDraft     DuplicateSource = "draft"
)

// ImportedOperation is a draft awaiting review and posting. Source keeps the
// original statement fields for audit and later duplicate checks.
type ImportedOperation struct {
	ID        string
	CompanyID string
	SessionID string
	Source    ParsedDocument

	Direction      Direction
	ArticleID      string
	CounterpartyID string
	AccountID      string
	Currency       string
	MatchedBy      MatchedBy
	MatchedRuleID  string

	Confirmed       bool
	Processed       bool
	IsDuplicate     bool
	DuplicateOfID   string
	DuplicateSource DuplicateSource
	OperationID     string // set once posted
	LockedFields    FieldSet

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullyMatched reports whether both article and account are resolved.
func (o *ImportedOperation) FullyMatched() bool {
	return o.ArticleID != "" && o.AccountID != ""
}

// Field names a draft attribute that can be locked against automatic updates.
type Field string

const (
	FieldDirection    Field = "direction"
	FieldArticle      Field = "article"
	FieldCounterparty Field = "counterparty"
	FieldAccount      Field = "account"
	FieldCurrency     Field = "currency"
)

// AllFields lists every lockable field.
var AllFields = []Field{FieldDirection, FieldArticle, FieldCounterparty, FieldAccount, FieldCurrency}

// ParseField validates a field name.
func ParseField(s string) (Field, bool) {
	for _, f := range AllFields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// FieldSet is a set of locked fields. The zero value is empty and usable
// for reads; use Add on a value created with NewFieldSet or after Clone.
type FieldSet map[Field]struct{}

// NewFieldSet returns a set holding fields.
func NewFieldSet(fields ...Field) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Add inserts f.
func (s FieldSet) Add(f Field) { s[f] = struct{}{} }

// Remove deletes f.
func (s FieldSet) Remove(f Field) { delete(s, f) }

// Clone returns an independent copy, never nil.
func (s FieldSet) Clone() FieldSet {
	c := make(FieldSet, len(s))
	for f := range s {
		c[f] = struct{}{}
	}
	return c
}

// Slice returns the fields in sorted order.
func (s FieldSet) Slice() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String joins the sorted fields with commas ("" for an empty set).
func (s FieldSet) String() string {
	fields := s.Slice()
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

// ParseFieldSet is the inverse of String. Unknown names are dropped.
func ParseFieldSet(s string) FieldSet {
	set := FieldSet{}
	for _, part := range strings.Split(s, ",") {
		if f, ok := ParseField(strings.TrimSpace(part)); ok {
			set.Add(f)
		}
	}
	return set
}
