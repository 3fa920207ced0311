package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/bankimport/internal/model"
)

// Header is the CSV header of an operations export.
const Header = "number,date,type,amount,currency,account_id,to_account_id,article_id,counterparty_id,description,content_hash"

const (
	numFields   = 11
	dateFormat  = "2006-01-02"
	colNumber   = 0
	colDate     = 1
	colType     = 2
	colAmount   = 3
	colCurrency = 4
	colAccount  = 5
	colToAcct   = 6
	colArticle  = 7
	colCparty   = 8
	colDesc     = 9
	colHash     = 10
)

// WriteOperations writes ops to w, header first.
func WriteOperations(w io.Writer, ops []model.Operation) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, op := range ops {
		if err := cw.Write(MarshalOperation(op)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// ReadOperations reads an export written by WriteOperations. CompanyID and
// ID are not part of the export and stay empty.
func ReadOperations(r io.Reader) ([]model.Operation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading operations CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var ops []model.Operation
	for i, rec := range records[1:] {
		op, err := UnmarshalOperation(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// MarshalOperation converts an Operation to a CSV row.
func MarshalOperation(op model.Operation) []string {
	row := make([]string, numFields)
	row[colNumber] = op.Number
	row[colDate] = op.Date.Format(dateFormat)
	row[colType] = string(op.Type)
	row[colAmount] = op.Amount.StringFixed(2)
	row[colCurrency] = op.Currency
	row[colAccount] = op.AccountID
	row[colToAcct] = op.ToAccountID
	row[colArticle] = op.ArticleID
	row[colCparty] = op.CounterpartyID
	row[colDesc] = op.Description
	row[colHash] = op.ContentHash
	return row
}

// UnmarshalOperation converts a CSV row to an Operation.
func UnmarshalOperation(record []string) (model.Operation, error) {
	if len(record) != numFields {
		return model.Operation{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	date, err := time.Parse(dateFormat, record[colDate])
	if err != nil {
		return model.Operation{}, fmt.Errorf("parsing date %q: %w", record[colDate], err)
	}
	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Operation{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}
	typ, ok := model.ParseDirection(record[colType])
	if !ok || !typ.Determined() {
		return model.Operation{}, fmt.Errorf("parsing type %q: unknown operation type", record[colType])
	}

	return model.Operation{
		Number:         record[colNumber],
		Date:           date,
		Type:           typ,
		Amount:         amount,
		Currency:       record[colCurrency],
		AccountID:      record[colAccount],
		ToAccountID:    record[colToAcct],
		ArticleID:      record[colArticle],
		CounterpartyID: record[colCparty],
		Description:    record[colDesc],
		ContentHash:    record[colHash],
	}, nil
}
