package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/cleared-dev/bankimport/internal/catalog"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

const (
	companyTaxID   = "7701234567"
	companyAccount = "40702810900000000001"
	supplierTaxID  = "7707083893"
)

type recordingCache struct {
	mu      sync.Mutex
	reasons []string
}

func (c *recordingCache) Invalidate(_ context.Context, _, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasons = append(c.reasons, reason)
}

type fixture struct {
	svc      *Service
	store    *store.Store
	company  model.Company
	cache    *recordingCache
	articles map[string]string // name -> id
	accounts map[string]string // number -> id
	cps      map[string]string // name -> id
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := model.Company{Name: "ООО Ромашка", TaxID: companyTaxID, Active: true}
	require.NoError(t, s.CreateCompany(ctx, &c))

	accounts := []model.Account{
		{Name: "Основной", Number: companyAccount, Currency: "RUB", Active: true},
		{Name: "Резерв", Number: "40702810900000000002", Currency: "RUB", Active: true},
	}
	articles := catalog.DefaultArticles()
	cps := []model.Counterparty{
		{Name: "ООО \"Поставщик\"", TaxID: supplierTaxID, Active: true},
		{Name: "ИП Арендодатель Петров Петр", Active: true},
	}
	require.NoError(t, s.SaveAccounts(ctx, c.ID, accounts))
	require.NoError(t, s.SaveArticles(ctx, c.ID, articles))
	require.NoError(t, s.SaveCounterparties(ctx, c.ID, cps))

	f := &fixture{
		store:    s,
		company:  c,
		cache:    &recordingCache{},
		articles: map[string]string{},
		accounts: map[string]string{},
		cps:      map[string]string{},
	}
	for _, a := range accounts {
		f.accounts[a.Number] = a.ID
	}
	for _, a := range articles {
		f.articles[a.Name] = a.ID
	}
	for _, cp := range cps {
		f.cps[cp.Name] = cp.ID
	}
	f.svc = NewService(s, nil, f.cache, opts, zerolog.Nop())
	return f
}

type doc struct {
	label         string
	number        string
	date          string
	amount        string
	receiver      string
	receiverTaxID string
	receiverAcct  string
	purpose       string
}

func rentDoc() doc {
	return doc{label: "Платежное поручение", number: "41", date: "05.03.2025", amount: "12000,00",
		receiver: "ИП Арендодатель", receiverAcct: "40802810000000000077", purpose: "Аренда офиса за март"}
}

func goodsDoc() doc {
	return doc{label: "Платежное поручение", number: "42", date: "06.03.2025", amount: "3500,00",
		receiver: "ООО \"Поставщик\"", receiverTaxID: supplierTaxID, receiverAcct: "40702810500000000777",
		purpose: "Оплата за товары по счету 17"}
}

func orderDoc() doc {
	return doc{label: "Банковский ордер", number: "7", date: "06.03.2025", amount: "150,00",
		receiver: "ПАО Банк", receiverAcct: "30101810400000000225", purpose: "Комиссия за ведение счета"}
}

func (d doc) text() string {
	var b strings.Builder
	b.WriteString("СекцияДокумент=" + d.label + "\r\n")
	b.WriteString("Номер=" + d.number + "\r\n")
	b.WriteString("Дата=" + d.date + "\r\n")
	b.WriteString("Сумма=" + d.amount + "\r\n")
	b.WriteString("ПлательщикСчет=" + companyAccount + "\r\n")
	b.WriteString("Плательщик1=ООО \"Ромашка\"\r\n")
	b.WriteString("ПлательщикИНН=" + companyTaxID + "\r\n")
	b.WriteString("ПолучательСчет=" + d.receiverAcct + "\r\n")
	b.WriteString("Получатель1=" + d.receiver + "\r\n")
	if d.receiverTaxID != "" {
		b.WriteString("ПолучательИНН=" + d.receiverTaxID + "\r\n")
	}
	b.WriteString("НазначениеПлатежа=" + d.purpose + "\r\n")
	b.WriteString("КонецДокумента\r\n")
	return b.String()
}

func statement(t *testing.T, docs ...doc) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString("1CClientBankExchange\r\n")
	b.WriteString("ВерсияФормата=1.03\r\n")
	b.WriteString("Кодировка=Windows\r\n")
	b.WriteString("РасчСчет=" + companyAccount + "\r\n")
	for _, d := range docs {
		b.WriteString(d.text())
	}
	b.WriteString("КонецФайла\r\n")
	out, err := charmap.Windows1251.NewEncoder().String(b.String())
	require.NoError(t, err)
	return []byte(out)
}

func (f *fixture) upload(t *testing.T, docs ...doc) UploadResult {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), f.company.ID, UploadRequest{
		FileName: "kl_to_1c.txt",
		Data:     statement(t, docs...),
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) drafts(t *testing.T, sessionID string) []model.ImportedOperation {
	t.Helper()
	page, err := f.svc.ListDrafts(context.Background(), f.company.ID, sessionID, store.DraftFilter{})
	require.NoError(t, err)
	return page.Drafts
}

func ptr[T any](v T) *T { return &v }
