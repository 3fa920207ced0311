package matching

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/model"
)

const (
	companyTaxID = "7701234567"
	mainAccount  = "40702810900000000001"
	spareAccount = "40702810900000000002"
	supplierTax  = "7707083893"
	customerTax  = "500100732259"
)

type usageLog struct {
	mu   sync.Mutex
	hits []string
}

func (u *usageLog) IncrementRuleUsage(_ context.Context, _, ruleID string, _ time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hits = append(u.hits, ruleID)
	return nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		[]model.Account{
			{ID: "acc-main", Name: "Основной", Number: mainAccount, Currency: "RUB", Active: true},
			{ID: "acc-spare", Name: "Резервный", Number: spareAccount, Currency: "RUB", Active: true},
		},
		[]model.Article{
			{ID: "art-rent", Name: "Аренда", Category: model.ArticleExpense, Active: true},
			{ID: "art-goods", Name: "Закупка товаров", Category: model.ArticleExpense, Active: true},
			{ID: "art-taxes", Name: "Налоги и сборы", Category: model.ArticleExpense, Active: true},
			{ID: "art-sales", Name: "Выручка от реализации", Category: model.ArticleIncome, Active: true},
			{ID: "art-refund", Name: "Возврат средств", Category: model.ArticleIncome, Active: true},
			{ID: "art-off", Name: "Старая статья", Category: model.ArticleExpense, Active: false},
		},
		[]model.Counterparty{
			{ID: "cp-supplier", Name: "ООО \"Поставщик\"", TaxID: supplierTax, Active: true},
			{ID: "cp-customer", Name: "ИП Иванов Иван", TaxID: customerTax, Active: true},
			{ID: "cp-landlord", Name: "АО Недвижимость Плюс", Active: true},
			{ID: "cp-gone", Name: "ООО Закрыто", Active: false},
		},
	)
}

func newEngine(rules []model.MappingRule, opts ...func(*Options)) (*Engine, *usageLog) {
	u := &usageLog{}
	o := Options{
		CompanyID:    "co-1",
		CompanyTaxID: companyTaxID,
		Catalog:      testCatalog(),
		Rules:        rules,
		Usage:        u,
		Now:          func() time.Time { return time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC) },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o), u
}

var ruleClock = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func rule(id string, rt model.RuleType, pattern string, target model.TargetType, targetID string, field model.SourceField) model.MappingRule {
	ruleClock = ruleClock.Add(time.Minute)
	return model.MappingRule{
		ID:          id,
		CompanyID:   "co-1",
		RuleType:    rt,
		Pattern:     pattern,
		TargetType:  target,
		TargetID:    targetID,
		SourceField: field,
		CreatedAt:   ruleClock,
	}
}

func expenseDoc(purpose string) model.ParsedDocument {
	return model.ParsedDocument{
		Date:            time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Number:          "15",
		Amount:          decimal.RequireFromString("1500.00"),
		Payer:           "ООО Ромашка",
		PayerTaxID:      companyTaxID,
		PayerAccount:    mainAccount,
		Receiver:        "ООО \"Поставщик\"",
		ReceiverTaxID:   supplierTax,
		ReceiverAccount: "40702810500000000777",
		Purpose:         purpose,
	}
}

func incomeDoc(purpose string) model.ParsedDocument {
	return model.ParsedDocument{
		Date:            time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC),
		Number:          "7",
		Amount:          decimal.RequireFromString("25000.00"),
		Payer:           "ИП Иванов Иван",
		PayerTaxID:      customerTax,
		PayerAccount:    "40802810000000000123",
		Receiver:        "ООО Ромашка",
		ReceiverTaxID:   companyTaxID,
		ReceiverAccount: spareAccount,
		Purpose:         purpose,
	}
}
