package importer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/bankimport/internal/model"
)

// ClientBankParser reads 1C "1CClientBankExchange" statement exports.
// Malformed documents are dropped and counted; only a missing envelope or a
// file without a single valid payment order is fatal.
type ClientBankParser struct {
	Log zerolog.Logger
}

const (
	clientBankDateFormat = "02.01.2006"
	keyDocumentStart     = "секциядокумент"
	keyDocumentEnd       = "конецдокумента"
	keyHeaderAccount     = "расчсчет"
	paymentOrderLabel    = "платежное поручение"
)

type docField int

const (
	fieldNone docField = iota
	fieldDate
	fieldNumber
	fieldAmount
	fieldPayer
	fieldPayerName
	fieldPayerTaxID
	fieldPayerAccount
	fieldReceiver
	fieldReceiverName
	fieldReceiverTaxID
	fieldReceiverAccount
	fieldPurpose
)

// keyTable maps normalized keys (lower case, no spaces) to document fields.
var keyTable = map[string]docField{
	"дата":               fieldDate,
	"номер":              fieldNumber,
	"сумма":              fieldAmount,
	"плательщик":         fieldPayer,
	"плательщик1":        fieldPayerName,
	"плательщикинн":      fieldPayerTaxID,
	"плательщиксчет":     fieldPayerAccount,
	"плательщикрасчсчет": fieldPayerAccount,
	"получатель":         fieldReceiver,
	"получатель1":        fieldReceiverName,
	"получательинн":      fieldReceiverTaxID,
	"получательсчет":     fieldReceiverAccount,
	"получательрасчсчет": fieldReceiverAccount,
	"назначениеплатежа":  fieldPurpose,
}

// Format returns the parser name.
func (p *ClientBankParser) Format() string { return "1c" }

// ParseError is a fatal problem with the whole file.
type ParseError struct {
	Line   int // 1-based, 0 when not tied to a line
	Offset int // byte offset into the decoded text
	Reason string
	Stats  model.ParseStats
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parsing statement: line %d (offset %d): %s", e.Line, e.Offset, e.Reason)
	}
	return "parsing statement: " + e.Reason
}

// Parse decodes data and extracts every valid payment order.
func (p *ClientBankParser) Parse(data []byte) (*Statement, error) {
	text, encoding, check := decodeStatement(data)
	if !check.found {
		return nil, &ParseError{
			Line:   check.line,
			Offset: check.offset,
			Reason: fmt.Sprintf("%s marker not found in the first %d non-empty lines", envelopeMarker, markerSearchLines),
		}
	}

	st := &Statement{Format: p.Format(), Encoding: encoding}
	t := tokenizer{log: p.Log, labels: map[string]struct{}{}}
	for i, raw := range strings.Split(text, "\n") {
		t.line(i+1, cleanLine(raw))
	}
	t.eof()

	st.CompanyAccount = t.headerAccount
	st.Documents = t.docs
	st.Stats = t.stats
	for label := range t.labels {
		st.Stats.DocumentTypes = append(st.Stats.DocumentTypes, label)
	}
	sort.Strings(st.Stats.DocumentTypes)

	if len(st.Documents) == 0 {
		return nil, &ParseError{
			Reason: fmt.Sprintf("no valid payment documents (started %d, skipped %d, invalid %d, types [%s])",
				st.Stats.DocumentsStarted, st.Stats.DocumentsSkipped, st.Stats.DocumentsInvalid,
				strings.Join(st.Stats.DocumentTypes, ", ")),
			Stats: st.Stats,
		}
	}
	return st, nil
}

type tokenizer struct {
	log           zerolog.Logger
	headerAccount string
	seenDocument  bool

	open     bool
	accepted bool
	startAt  int
	cur      model.ParsedDocument
	hasDate  bool
	payerFB  string // Плательщик, used when Плательщик1 is absent
	recvFB   string

	docs   []model.ParsedDocument
	stats  model.ParseStats
	labels map[string]struct{}
}

func (t *tokenizer) line(n int, line string) {
	if line == "" {
		return
	}
	rawKey, value, hasValue := strings.Cut(line, "=")
	key := normalizeKey(rawKey)

	switch {
	case key == keyDocumentStart:
		if t.open {
			t.log.Debug().Int("line", t.startAt).Msg("document not terminated before next one")
			t.close()
		}
		t.start(n, strings.TrimSpace(value))
		return
	case key == keyDocumentEnd && !hasValue:
		if t.open {
			t.close()
		}
		return
	}

	if !hasValue {
		return
	}
	value = unquote(value)

	if !t.seenDocument {
		if key == keyHeaderAccount && t.headerAccount == "" {
			if acc, ok := validAccount(value); ok {
				t.headerAccount = acc
			} else {
				t.log.Debug().Int("line", n).Str("value", value).Msg("invalid header account")
			}
		}
		return
	}
	if t.open && t.accepted {
		t.set(n, key, value)
	}
}

func (t *tokenizer) start(n int, label string) {
	t.seenDocument = true
	t.open = true
	t.startAt = n
	t.cur = model.ParsedDocument{}
	t.hasDate = false
	t.payerFB, t.recvFB = "", ""
	t.stats.DocumentsStarted++
	if label != "" {
		t.labels[label] = struct{}{}
	}
	t.accepted = isPaymentOrder(label)
	if !t.accepted {
		t.stats.DocumentsSkipped++
	}
}

func (t *tokenizer) close() {
	t.open = false
	if !t.accepted {
		return
	}
	if t.cur.Payer == "" {
		t.cur.Payer = t.payerFB
	}
	if t.cur.Receiver == "" {
		t.cur.Receiver = t.recvFB
	}
	if !t.hasDate || !t.cur.Amount.IsPositive() {
		t.stats.DocumentsInvalid++
		t.log.Debug().Int("line", t.startAt).Bool("has_date", t.hasDate).
			Str("amount", t.cur.Amount.String()).Msg("dropping document without date or positive amount")
		return
	}
	t.cur.Hash = t.cur.ContentHash()
	t.docs = append(t.docs, t.cur)
	t.stats.DocumentsFound++
}

func (t *tokenizer) eof() {
	if t.open && t.accepted {
		t.stats.DocumentsInvalid++
		t.log.Debug().Int("line", t.startAt).Msg("document not terminated at end of file")
	}
	t.open = false
}

func (t *tokenizer) set(n int, key, value string) {
	field, ok := keyTable[key]
	if !ok {
		field = taxIDFallback(key)
		if field == fieldPayerTaxID && t.cur.PayerTaxID != "" ||
			field == fieldReceiverTaxID && t.cur.ReceiverTaxID != "" {
			return
		}
	}

	bad := func(what string) {
		t.log.Debug().Int("line", n).Str("field", key).Str("value", value).Msg("invalid " + what)
	}

	switch field {
	case fieldDate:
		d, err := time.Parse(clientBankDateFormat, value)
		if err != nil {
			bad("date")
			return
		}
		t.cur.Date = d
		t.hasDate = true
	case fieldNumber:
		t.cur.Number = value
	case fieldAmount:
		amt, ok := parseAmount(value)
		if !ok {
			bad("amount")
			return
		}
		t.cur.Amount = amt
	case fieldPayer:
		t.payerFB = value
	case fieldPayerName:
		t.cur.Payer = value
	case fieldReceiver:
		t.recvFB = value
	case fieldReceiverName:
		t.cur.Receiver = value
	case fieldPayerTaxID, fieldReceiverTaxID:
		id, ok := validTaxID(value)
		if !ok {
			bad("tax id")
			return
		}
		if field == fieldPayerTaxID {
			t.cur.PayerTaxID = id
		} else {
			t.cur.ReceiverTaxID = id
		}
	case fieldPayerAccount, fieldReceiverAccount:
		acc, ok := validAccount(value)
		if !ok {
			bad("account")
			return
		}
		if field == fieldPayerAccount {
			t.cur.PayerAccount = acc
		} else {
			t.cur.ReceiverAccount = acc
		}
	case fieldPurpose:
		t.cur.Purpose = value
	}
}

// taxIDFallback classifies unknown keys that still look like a tax id field,
// e.g. "ИННПолучателя".
func taxIDFallback(key string) docField {
	if !strings.Contains(key, "инн") {
		return fieldNone
	}
	switch {
	case strings.Contains(key, "получ"):
		return fieldReceiverTaxID
	case strings.Contains(key, "плат"):
		return fieldPayerTaxID
	}
	return fieldNone
}

func isPaymentOrder(label string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	return l == "" || l == paymentOrderLabel ||
		strings.Contains(l, "платеж") || strings.Contains(l, "поручени")
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.Join(strings.Fields(k), ""))
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}

func parseAmount(v string) (decimal.Decimal, bool) {
	v = strings.ReplaceAll(strings.Join(strings.Fields(v), ""), ",", ".")
	amt, err := decimal.NewFromString(v)
	if err != nil || !amt.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amt, true
}

func validTaxID(v string) (string, bool) {
	v = strings.Join(strings.Fields(v), "")
	if model.ValidTaxID(v) {
		return v, true
	}
	return "", false
}

func validAccount(v string) (string, bool) {
	v = strings.Join(strings.Fields(v), "")
	if model.ValidAccountNumber(v) {
		return v, true
	}
	return "", false
}
