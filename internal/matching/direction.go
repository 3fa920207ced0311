package matching

import (
	"strings"

	"github.com/cleared-dev/bankimport/internal/model"
)

// DirectionInput carries the signals used to classify a document.
type DirectionInput struct {
	PayerTaxID      string
	ReceiverTaxID   string
	PayerAccount    string
	ReceiverAccount string
	CompanyTaxID    string
	OwnAccounts     map[string]bool
}

// ClassifyDirection infers the money flow from the company's point of view.
// Tax ids decide first; account membership is consulted only when they are
// inconclusive.
func ClassifyDirection(in DirectionInput) model.Direction {
	company := stripSpaces(in.CompanyTaxID)
	if company != "" {
		payer := stripSpaces(in.PayerTaxID) == company
		receiver := stripSpaces(in.ReceiverTaxID) == company
		if d := fromSides(payer, receiver); d != model.DirectionUndetermined {
			return d
		}
	}

	payer := in.OwnAccounts[stripSpaces(in.PayerAccount)]
	receiver := in.OwnAccounts[stripSpaces(in.ReceiverAccount)]
	return fromSides(payer, receiver)
}

func fromSides(payer, receiver bool) model.Direction {
	switch {
	case payer && receiver:
		return model.DirectionTransfer
	case payer:
		return model.DirectionExpense
	case receiver:
		return model.DirectionIncome
	}
	return model.DirectionUndetermined
}

// ClassifyDirection classifies doc with the engine's company tax id and
// account set.
func (e *Engine) ClassifyDirection(doc model.ParsedDocument) model.Direction {
	return ClassifyDirection(DirectionInput{
		PayerTaxID:      doc.PayerTaxID,
		ReceiverTaxID:   doc.ReceiverTaxID,
		PayerAccount:    doc.PayerAccount,
		ReceiverAccount: doc.ReceiverAccount,
		CompanyTaxID:    e.companyTaxID,
		OwnAccounts:     e.ownAccounts,
	})
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
