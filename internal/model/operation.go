package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation is a posted ledger transaction.
type Operation struct {
	ID                  string
	CompanyID           string
	Number              string // "YYYY-MM-NNN", see internal/id
	Date                time.Time
	Type                Direction // income, expense or transfer
	Amount              decimal.Decimal
	Currency            string
	AccountID           string
	ToAccountID         string // transfers only
	ArticleID           string
	CounterpartyID      string // empty when no counterparty was resolved
	Description         string
	ContentHash         string
	ImportedOperationID string
	CreatedAt           time.Time
}
