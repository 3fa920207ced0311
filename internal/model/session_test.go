package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestImportSessionRecompute(t *testing.T) {
	tests := []struct {
		name                           string
		imported, confirmed, processed int
		want                           SessionStatus
	}{
		{"fresh", 3, 0, 0, SessionDraft},
		{"some confirmed", 3, 1, 0, SessionConfirmed},
		{"partially posted", 3, 3, 2, SessionConfirmed},
		{"all posted", 3, 3, 3, SessionProcessed},
		{"empty session", 0, 0, 0, SessionDraft},
	}
	for _, tt := range tests {
		s := ImportSession{ImportedCount: tt.imported, ConfirmedCount: tt.confirmed, ProcessedCount: tt.processed}
		s.Recompute()
		assert.Equal(t, tt.want, s.Status, tt.name)
	}
}

func TestFieldSetRoundTrip(t *testing.T) {
	set := NewFieldSet(FieldAccount, FieldArticle)
	assert.Equal(t, "account,article", set.String())

	got := ParseFieldSet("article, account,bogus")
	assert.True(t, got.Has(FieldArticle))
	assert.True(t, got.Has(FieldAccount))
	assert.False(t, got.Has(FieldCurrency))
	assert.Len(t, got, 2)

	assert.Empty(t, ParseFieldSet(""))
}

func TestFieldSetCloneIsIndependent(t *testing.T) {
	var nilSet FieldSet
	c := nilSet.Clone()
	c.Add(FieldCurrency)
	assert.True(t, c.Has(FieldCurrency))
	assert.False(t, nilSet.Has(FieldCurrency))
}

func TestContentHashStable(t *testing.T) {
	doc := ParsedDocument{
		Date:          time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Number:        "17",
		Amount:        decimal.RequireFromString("1500.5"),
		PayerTaxID:    "7701234567",
		ReceiverTaxID: "7707654321",
		Purpose:       "Оплата  по счету №5",
	}
	same := doc
	same.Purpose = "оплата по счету №5"
	assert.Equal(t, doc.ContentHash(), same.ContentHash())

	other := doc
	other.Amount = decimal.RequireFromString("1500.51")
	assert.NotEqual(t, doc.ContentHash(), other.ContentHash())
	assert.Len(t, doc.ContentHash(), 64)
}

func TestDirectionHelpers(t *testing.T) {
	assert.Equal(t, ArticleExpense, DirectionExpense.ArticleCategory())
	assert.Equal(t, ArticleIncome, DirectionIncome.ArticleCategory())
	assert.Equal(t, ArticleCategory(""), DirectionTransfer.ArticleCategory())
	assert.False(t, DirectionUndetermined.Determined())
	assert.Equal(t, "undetermined", DirectionUndetermined.String())

	d, ok := ParseDirection("undetermined")
	assert.True(t, ok)
	assert.Equal(t, DirectionUndetermined, d)
	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
}
