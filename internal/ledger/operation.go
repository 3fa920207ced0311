package ledger

import (
	"fmt"
	"time"

	"github.com/cleared-dev/bankimport/internal/id"
	"github.com/cleared-dev/bankimport/internal/model"
)

// NextNumber returns the next operation number for date's month given the
// numbers already used in that month.
func NextNumber(existing []string, d time.Time) string {
	return id.FormatOperationNumber(d.Year(), int(d.Month()), id.NextSeq(existing))
}

// BuildOperation turns a validated draft into a ledger operation. Transfers
// resolve both sides from the statement account numbers; the draft's account
// is ignored for them.
func BuildOperation(d model.ImportedOperation, number string, cat Catalog) (model.Operation, error) {
	op := model.Operation{
		CompanyID:           d.CompanyID,
		Number:              number,
		Date:                d.Source.Date,
		Type:                d.Direction,
		Amount:              d.Source.Amount,
		Currency:            d.Currency,
		ArticleID:           d.ArticleID,
		CounterpartyID:      d.CounterpartyID,
		Description:         d.Source.Purpose,
		ContentHash:         d.Source.Hash,
		ImportedOperationID: d.ID,
	}
	if op.ContentHash == "" {
		op.ContentHash = d.Source.ContentHash()
	}

	if d.Direction != model.DirectionTransfer {
		op.AccountID = d.AccountID
		return op, nil
	}

	from, ok := cat.AccountByNumber(d.Source.PayerAccount)
	if !ok {
		return model.Operation{}, fmt.Errorf("resolving payer account %q: not an own account", d.Source.PayerAccount)
	}
	to, ok := cat.AccountByNumber(d.Source.ReceiverAccount)
	if !ok {
		return model.Operation{}, fmt.Errorf("resolving receiver account %q: not an own account", d.Source.ReceiverAccount)
	}
	op.AccountID = from.ID
	op.ToAccountID = to.ID
	op.ArticleID = ""
	op.CounterpartyID = ""
	return op, nil
}
