package rules

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

func setup(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := model.Company{Name: "ООО Ромашка", TaxID: "7701234567", Active: true}
	require.NoError(t, s.CreateCompany(context.Background(), &c))
	return NewService(s, zerolog.Nop()), s, c.ID
}

func validRule() model.MappingRule {
	return model.MappingRule{
		RuleType:    model.RuleContains,
		Pattern:     "аренда",
		TargetType:  model.TargetArticle,
		TargetID:    "art-rent",
		SourceField: model.SourceDescription,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.MappingRule)
		wantErr string
	}{
		{"valid", func(*model.MappingRule) {}, ""},
		{"unknown type", func(r *model.MappingRule) { r.RuleType = "startsWith" }, "unknown rule type"},
		{"unknown target", func(r *model.MappingRule) { r.TargetType = "project" }, "unknown target type"},
		{"unknown field", func(r *model.MappingRule) { r.SourceField = "amount" }, "unknown source field"},
		{"empty pattern", func(r *model.MappingRule) { r.Pattern = "  " }, "empty pattern"},
		{"empty target", func(r *model.MappingRule) { r.TargetID = "" }, "empty target"},
		{"alias on article", func(r *model.MappingRule) { r.RuleType = model.RuleAlias }, "alias rules only"},
		{"alias on counterparty", func(r *model.MappingRule) {
			r.RuleType = model.RuleAlias
			r.TargetType = model.TargetCounterparty
		}, ""},
		{"bad regex", func(r *model.MappingRule) {
			r.RuleType = model.RuleRegex
			r.Pattern = "аренд(а"
		}, "does not compile"},
		{"operation type", func(r *model.MappingRule) {
			r.TargetType = model.TargetOperationType
			r.TargetID = "transfer"
		}, ""},
		{"bad operation type", func(r *model.MappingRule) {
			r.TargetType = model.TargetOperationType
			r.TargetID = "refund"
		}, "operation type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule()
			tt.mutate(&r)
			err := Validate(r)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRule)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	svc, _, companyID := setup(t)

	created, err := svc.Create(ctx, companyID, validRule())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, companyID, created.CompanyID)

	list, err := svc.List(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	created.Pattern = "субаренда"
	updated, err := svc.Update(ctx, companyID, created)
	require.NoError(t, err)
	assert.Equal(t, "субаренда", updated.Pattern)

	bad := created
	bad.Pattern = ""
	_, err = svc.Update(ctx, companyID, bad)
	assert.ErrorIs(t, err, ErrInvalidRule)

	require.NoError(t, svc.Delete(ctx, companyID, created.ID))
	_, err = svc.Get(ctx, companyID, created.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, companyID, created.ID), ErrRuleNotFound)

	missing := validRule()
	missing.ID = "nope"
	_, err = svc.Update(ctx, companyID, missing)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestService_CreateRejectsInvalid(t *testing.T) {
	svc, _, companyID := setup(t)
	r := validRule()
	r.RuleType = model.RuleAlias
	_, err := svc.Create(context.Background(), companyID, r)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestService_ScopedByCompany(t *testing.T) {
	ctx := context.Background()
	svc, s, companyID := setup(t)
	other := model.Company{Name: "Другая", TaxID: "7709999999", Active: true}
	require.NoError(t, s.CreateCompany(ctx, &other))

	created, err := svc.Create(ctx, companyID, validRule())
	require.NoError(t, err)
	_, err = svc.Get(ctx, other.ID, created.ID)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	list, err := svc.List(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func manualDraft(companyID string) model.ImportedOperation {
	return model.ImportedOperation{
		CompanyID: companyID,
		Source: model.ParsedDocument{
			Payer:    "ООО Ромашка",
			Receiver: "ООО \"Поставщик\"",
			Purpose:  "Оплата по счету 15",
		},
		Direction:      model.DirectionExpense,
		CounterpartyID: "cp-1",
		ArticleID:      "art-goods",
		AccountID:      "acc-1",
		Currency:       "RUB",
		MatchedBy:      model.MatchedByManual,
	}
}

func TestLearn(t *testing.T) {
	ctx := context.Background()
	_, s, companyID := setup(t)
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	created, err := Learn(ctx, s, manualDraft(companyID), now)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, model.TargetCounterparty, created[0].TargetType)
	assert.Equal(t, "cp-1", created[0].TargetID)
	assert.Equal(t, model.TargetArticle, created[1].TargetType)
	for _, r := range created {
		assert.Equal(t, model.RuleEquals, r.RuleType)
		assert.Equal(t, model.SourceReceiver, r.SourceField)
		assert.Equal(t, `ООО "Поставщик"`, r.Pattern)
	}

	again, err := Learn(ctx, s, manualDraft(companyID), now)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := s.ListRules(ctx, companyID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestLearn_Skips(t *testing.T) {
	ctx := context.Background()
	_, s, companyID := setup(t)

	auto := manualDraft(companyID)
	auto.MatchedBy = model.MatchedByKeyword
	created, err := Learn(ctx, s, auto, time.Now())
	require.NoError(t, err)
	assert.Empty(t, created)

	transfer := manualDraft(companyID)
	transfer.Direction = model.DirectionTransfer
	created, err = Learn(ctx, s, transfer, time.Now())
	require.NoError(t, err)
	assert.Empty(t, created)

	income := manualDraft(companyID)
	income.Direction = model.DirectionIncome
	income.CounterpartyID = ""
	created, err = Learn(ctx, s, income, time.Now())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.SourcePayer, created[0].SourceField)
	assert.Equal(t, "ООО Ромашка", created[0].Pattern)
}
