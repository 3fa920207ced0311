package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cleared-dev/bankimport/internal/model"
)

func TestClassifyDirection(t *testing.T) {
	own := map[string]bool{mainAccount: true, spareAccount: true}
	tests := []struct {
		name string
		in   DirectionInput
		want model.Direction
	}{
		{"payer is company", DirectionInput{PayerTaxID: companyTaxID, ReceiverTaxID: supplierTax}, model.DirectionExpense},
		{"receiver is company", DirectionInput{PayerTaxID: supplierTax, ReceiverTaxID: companyTaxID}, model.DirectionIncome},
		{"both sides company", DirectionInput{PayerTaxID: companyTaxID, ReceiverTaxID: companyTaxID}, model.DirectionTransfer},
		{"no signal", DirectionInput{PayerTaxID: supplierTax, ReceiverTaxID: customerTax}, model.DirectionUndetermined},
		{"whitespace in tax id", DirectionInput{PayerTaxID: " 7701 234567 ", ReceiverTaxID: supplierTax}, model.DirectionExpense},
		{"account fallback expense", DirectionInput{PayerAccount: mainAccount, ReceiverAccount: "40702810500000000777"}, model.DirectionExpense},
		{"account fallback income", DirectionInput{PayerAccount: "40702810500000000777", ReceiverAccount: spareAccount}, model.DirectionIncome},
		{"account fallback transfer", DirectionInput{PayerAccount: mainAccount, ReceiverAccount: spareAccount}, model.DirectionTransfer},
		{"tax id beats accounts", DirectionInput{PayerTaxID: supplierTax, ReceiverTaxID: companyTaxID, PayerAccount: mainAccount}, model.DirectionIncome},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.CompanyTaxID = companyTaxID
			in.OwnAccounts = own
			assert.Equal(t, tt.want, ClassifyDirection(in))
		})
	}
}

func TestClassifyDirection_NoCompanyTaxID(t *testing.T) {
	got := ClassifyDirection(DirectionInput{PayerTaxID: "", ReceiverTaxID: ""})
	assert.Equal(t, model.DirectionUndetermined, got)
}

func TestEngine_ClassifyDirection(t *testing.T) {
	e, _ := newEngine(nil)
	assert.Equal(t, model.DirectionExpense, e.ClassifyDirection(expenseDoc("x")))
	assert.Equal(t, model.DirectionIncome, e.ClassifyDirection(incomeDoc("x")))
}
