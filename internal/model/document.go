package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParsedDocument is one payment order extracted from a statement file.
// Values are immutable once the parser has produced them.
type ParsedDocument struct {
	Date            time.Time
	Number          string // optional
	Amount          decimal.Decimal
	Payer           string
	PayerTaxID      string
	PayerAccount    string
	Receiver        string
	ReceiverTaxID   string
	ReceiverAccount string
	Purpose         string
	Hash            string // ContentHash, filled by the parser
}

// ParseStats are diagnostic counters collected while tokenizing a statement.
type ParseStats struct {
	DocumentsStarted int
	DocumentsFound   int
	DocumentsSkipped int
	DocumentsInvalid int
	DocumentTypes    []string // distinct labels, sorted
}

// ContentHash returns a stable fingerprint of the original document fields.
// Posted operations carry it so later uploads can be checked against them.
func (d ParsedDocument) ContentHash() string {
	fields := []string{
		d.Date.Format("2006-01-02"),
		strings.TrimSpace(d.Number),
		d.Amount.StringFixed(2),
		d.PayerTaxID,
		d.PayerAccount,
		d.ReceiverTaxID,
		d.ReceiverAccount,
		NormalizeText(d.Purpose),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

// NormalizeText lower-cases s and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
