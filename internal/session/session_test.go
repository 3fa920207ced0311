package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/bankimport/internal/importer"
	"github.com/cleared-dev/bankimport/internal/ledger"
	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

func TestUpload_TwoValidOneSkipped(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.upload(t, rentDoc(), orderDoc(), goodsDoc())

	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 2, res.Session.ImportedCount)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Stats.DocumentsSkipped)
	assert.Zero(t, res.Invalid)
	assert.Zero(t, res.Errors)
	assert.Zero(t, res.Duplicates)
	assert.Zero(t, res.PossibleDuplicates)
	assert.Equal(t, model.SessionDraft, res.Session.Status)
	assert.Equal(t, companyAccount, res.Session.CompanyAccount)
	assert.Equal(t, "windows-1251", res.Session.Encoding)

	drafts := f.drafts(t, res.Session.ID)
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.NotEqual(t, "7", d.Source.Number, "skipped document must not become a draft")
	}

	rent, goods := drafts[0], drafts[1]
	assert.Equal(t, "41", rent.Source.Number)
	assert.Equal(t, model.DirectionExpense, rent.Direction)
	assert.Equal(t, f.articles["Аренда"], rent.ArticleID)
	assert.Equal(t, f.accounts[companyAccount], rent.AccountID)
	assert.Empty(t, rent.CounterpartyID)
	assert.Equal(t, "RUB", rent.Currency)
	assert.Equal(t, model.MatchedByKeyword, rent.MatchedBy)

	assert.Equal(t, f.articles["Закупка товаров"], goods.ArticleID)
	assert.Equal(t, f.cps["ООО \"Поставщик\""], goods.CounterpartyID)
	assert.Equal(t, model.MatchedByKeyword, goods.MatchedBy)
}

func TestUpload_FileErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MaxFileBytes: 2000, MaxDocuments: 1})

	big := make([]byte, 2001)
	_, err := f.svc.Upload(ctx, f.company.ID, UploadRequest{FileName: "big.txt", Data: big})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = f.svc.Upload(ctx, f.company.ID, UploadRequest{FileName: "x.txt", Data: []byte("hello\nworld\n")})
	var perr *importer.ParseError
	assert.True(t, errors.As(err, &perr))

	_, err = f.svc.Upload(ctx, f.company.ID, UploadRequest{FileName: "two.txt", Data: statement(t, rentDoc(), goodsDoc())})
	assert.ErrorIs(t, err, ErrTooManyDocuments)

	page, err := f.svc.ListSessions(ctx, f.company.ID, store.SessionFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "no session is created for rejected files")
}

func TestUpload_FlagsDraftsPendingInAnotherSession(t *testing.T) {
	f := newFixture(t, Options{})
	first := f.upload(t, rentDoc(), goodsDoc())
	second := f.upload(t, rentDoc(), goodsDoc())

	assert.Zero(t, first.Duplicates)
	assert.Equal(t, 2, second.Duplicates)
	assert.Equal(t, 2, second.Imported)

	firstDrafts := f.drafts(t, first.Session.ID)
	for i, d := range f.drafts(t, second.Session.ID) {
		assert.True(t, d.IsDuplicate)
		assert.Equal(t, model.DuplicateOfDraft, d.DuplicateSource)
		assert.Equal(t, firstDrafts[i].ID, d.DuplicateOfID)
	}
}

func TestUpload_CompanyTaxIDMatchesPendingDrafts(t *testing.T) {
	other := doc{label: "Платежное поручение", number: "90", date: "06.03.2025", amount: "12000,00",
		receiver: "ИП Сидоров", receiverAcct: "40802810000000000088", purpose: "Возмещение расходов"}

	f := newFixture(t, Options{})
	f.upload(t, rentDoc())
	res := f.upload(t, other)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, model.DuplicateOfDraft, f.drafts(t, res.Session.ID)[0].DuplicateSource)

	f = newFixture(t, Options{IgnoreCompanyTaxID: true})
	f.upload(t, rentDoc())
	res = f.upload(t, other)
	assert.Zero(t, res.Duplicates)
}

func TestUpload_ReportsPostedHashes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	first := f.upload(t, rentDoc())
	d := f.drafts(t, first.Session.ID)[0]
	_, err := f.svc.ImportOperations(ctx, f.company.ID, first.Session.ID, ImportRequest{DraftIDs: []string{d.ID}})
	require.NoError(t, err)

	again := f.upload(t, rentDoc())
	assert.Equal(t, 1, again.PossibleDuplicates)
	assert.Equal(t, 1, again.Duplicates)
	dup := f.drafts(t, again.Session.ID)[0]
	assert.Equal(t, model.DuplicateOfOperation, dup.DuplicateSource)
}

func TestImportOperations_NoCounterparty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc())
	d := f.drafts(t, up.Session.ID)[0]
	require.Empty(t, d.CounterpartyID)

	_, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{Confirmed: ptr(true)})
	require.NoError(t, err)

	res, err := f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID, ImportRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Errors)
	assert.Equal(t, model.SessionProcessed, res.Session.Status)
	assert.Equal(t, []string{"operations posted"}, f.cache.reasons)

	ops, err := f.store.ListOperations(ctx, f.company.ID, d.Source.Date, d.Source.Date)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Empty(t, op.CounterpartyID)
	assert.Equal(t, "2025-03-001", op.Number)
	assert.Equal(t, model.DirectionExpense, op.Type)
	assert.Equal(t, d.Source.Hash, op.ContentHash)
	assert.Equal(t, d.ID, op.ImportedOperationID)

	posted, err := f.store.GetDraft(ctx, f.company.ID, up.Session.ID, d.ID)
	require.NoError(t, err)
	assert.True(t, posted.Processed)
	assert.Equal(t, op.ID, posted.OperationID)

	_, err = f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID, ImportRequest{})
	assert.ErrorIs(t, err, ErrNothingToImport)
}

func TestImportOperations_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{PostBatchSize: 2})
	third := goodsDoc()
	third.number, third.amount, third.purpose = "43", "780,00", "Оплата за товары по счету 18"
	up := f.upload(t, rentDoc(), goodsDoc(), third)
	drafts := f.drafts(t, up.Session.ID)
	require.Len(t, drafts, 3)

	failing := drafts[1].ID
	_, err := f.store.DB().Exec(`CREATE TRIGGER reject_post BEFORE INSERT ON operations
		WHEN NEW.imported_operation_id = '` + failing + `'
		BEGIN SELECT RAISE(ABORT, 'posting rejected'); END`)
	require.NoError(t, err)

	ids := []string{drafts[0].ID, drafts[1].ID, drafts[2].ID}
	res, err := f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID, ImportRequest{DraftIDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.ItemErrors, 1)
	assert.Equal(t, failing, res.ItemErrors[0].Key)
	assert.Contains(t, res.ItemErrors[0].Message, "posting rejected")

	for _, d := range f.drafts(t, up.Session.ID) {
		assert.Equal(t, d.ID != failing, d.Processed, "draft %s", d.Source.Number)
	}
	assert.Equal(t, 2, res.Session.ProcessedCount)
	assert.Equal(t, model.SessionDraft, res.Session.Status)

	nums, err := f.store.OperationNumbers(ctx, f.company.ID, "2025-03-")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-001", "2025-03-002"}, nums)
}

func TestImportOperations_DraftPostedMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc())
	d := f.drafts(t, up.Session.ID)[0]

	// Another run flips the draft to processed between this run's selection
	// and its own update.
	_, err := f.store.DB().Exec(`CREATE TRIGGER concurrent_post AFTER INSERT ON operations
		BEGIN UPDATE imported_operations SET processed = 1 WHERE id = NEW.imported_operation_id; END`)
	require.NoError(t, err)

	res, err := f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID, ImportRequest{DraftIDs: []string{d.ID}})
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.ItemErrors, 1)
	assert.Contains(t, res.ItemErrors[0].Message, ErrDraftProcessed.Error())

	ops, err := f.store.ListOperations(ctx, f.company.ID, d.Source.Date, d.Source.Date)
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Empty(t, f.cache.reasons)
}

func TestImportOperations_ConcurrentRunsPostOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc())
	d := f.drafts(t, up.Session.ID)[0]

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID, ImportRequest{DraftIDs: []string{d.ID}})
			if err != nil {
				assert.ErrorIs(t, err, ErrNothingToImport)
				return
			}
			mu.Lock()
			created += res.Created
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	ops, err := f.store.ListOperations(ctx, f.company.ID, d.Source.Date, d.Source.Date)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestImportOperations_ValidationNamesDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc(), goodsDoc())
	drafts := f.drafts(t, up.Session.ID)

	_, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, drafts[1].ID, Patch{ArticleID: ptr("")})
	require.NoError(t, err)

	_, err = f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID,
		ImportRequest{DraftIDs: []string{drafts[0].ID, drafts[1].ID}})
	var verrs ledger.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{drafts[1].ID}, verrs.Drafts())

	ops, err := f.store.ListOperations(ctx, f.company.ID, drafts[0].Source.Date, drafts[1].Source.Date)
	require.NoError(t, err)
	assert.Empty(t, ops, "nothing is posted when validation fails")
	assert.Empty(t, f.cache.reasons)
}

func TestImportOperations_LearnsRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc())
	d := f.drafts(t, up.Session.ID)[0]

	landlord := f.cps["ИП Арендодатель Петров Петр"]
	ur, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{CounterpartyID: ptr(landlord)})
	require.NoError(t, err)
	assert.Equal(t, model.MatchedByManual, ur.Draft.MatchedBy)

	res, err := f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID,
		ImportRequest{DraftIDs: []string{d.ID}, LearnRules: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RulesLearned)

	next := f.upload(t, doc{label: "Платежное поручение", number: "55", date: "05.04.2025", amount: "12000,00",
		receiver: "ИП Арендодатель", receiverAcct: "40802810000000000077", purpose: "Платеж по договору 7"})
	nd := f.drafts(t, next.Session.ID)[0]
	assert.Equal(t, landlord, nd.CounterpartyID)
	assert.Equal(t, f.articles["Аренда"], nd.ArticleID)
	assert.Equal(t, model.MatchedByRule, nd.MatchedBy)
	assert.NotEmpty(t, nd.MatchedRuleID)
}

func TestUpdateDraft_LocksAndSkips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, goodsDoc())
	d := f.drafts(t, up.Session.ID)[0]
	rent := f.articles["Аренда"]

	res, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{ArticleID: ptr(rent)})
	require.NoError(t, err)
	assert.Equal(t, rent, res.Draft.ArticleID)
	assert.True(t, res.Draft.LockedFields.Has(model.FieldArticle))
	assert.Equal(t, model.MatchedByManual, res.Draft.MatchedBy)
	assert.Empty(t, res.Skipped)

	// A bulk edit leaves the locked article alone and reports it.
	goods := f.articles["Закупка товаров"]
	br, err := f.svc.BulkUpdate(ctx, f.company.ID, up.Session.ID, []string{d.ID}, Patch{ArticleID: ptr(goods), Confirmed: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, 1, br.Updated)
	assert.Equal(t, []model.Field{model.FieldArticle}, br.Skipped[d.ID])

	got, err := f.store.GetDraft(ctx, f.company.ID, up.Session.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, rent, got.ArticleID)
	assert.True(t, got.Confirmed)

	sess, err := f.svc.GetSession(ctx, f.company.ID, up.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionConfirmed, sess.Status)

	// Unlocking in the same patch allows the edit.
	res, err = f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID,
		Patch{ArticleID: ptr(goods), Unlock: []model.Field{model.FieldArticle}})
	require.NoError(t, err)
	assert.Equal(t, goods, res.Draft.ArticleID)

	// Clearing the account regresses the manual match.
	res, err = f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{AccountID: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, model.MatchedNone, res.Draft.MatchedBy)
}

func TestUpdateDraft_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc())
	d := f.drafts(t, up.Session.ID)[0]

	_, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{ArticleID: ptr("nope")})
	assert.ErrorIs(t, err, ErrInvalidPatch)
	_, err = f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{Direction: ptr(model.Direction("refund"))})
	assert.ErrorIs(t, err, ErrInvalidPatch)
	_, err = f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, "missing", Patch{Confirmed: ptr(true)})
	assert.ErrorIs(t, err, ErrDraftNotFound)
	_, err = f.svc.UpdateDraft(ctx, f.company.ID, "missing", d.ID, Patch{Confirmed: ptr(true)})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.svc.ImportOperations(ctx, f.company.ID, up.Session.ID, ImportRequest{DraftIDs: []string{d.ID}})
	require.NoError(t, err)
	_, err = f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{Confirmed: ptr(false)})
	assert.ErrorIs(t, err, ErrDraftProcessed)

	br, err := f.svc.BulkUpdate(ctx, f.company.ID, up.Session.ID, []string{d.ID, "missing"}, Patch{Confirmed: ptr(true)})
	require.NoError(t, err)
	assert.Zero(t, br.Updated)
	assert.Len(t, br.Errors, 2)
}

func TestApplyRules_IdempotentAndRespectsLocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc(), goodsDoc())
	drafts := f.drafts(t, up.Session.ID)
	rentDraft, goodsDraft := drafts[0], drafts[1]

	rent := f.articles["Аренда"]
	_, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, goodsDraft.ID, Patch{ArticleID: ptr(rent)})
	require.NoError(t, err)

	landlord := f.cps["ИП Арендодатель Петров Петр"]
	rule := model.MappingRule{CompanyID: f.company.ID, RuleType: model.RuleEquals, Pattern: "ИП Арендодатель",
		TargetType: model.TargetCounterparty, TargetID: landlord, SourceField: model.SourceReceiver}
	require.NoError(t, f.store.CreateRule(ctx, &rule))

	first, err := f.svc.ApplyRules(ctx, f.company.ID, up.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Checked)
	assert.Equal(t, 1, first.Changed)
	assert.Equal(t, 2, first.Matched)

	second, err := f.svc.ApplyRules(ctx, f.company.ID, up.Session.ID)
	require.NoError(t, err)
	assert.Zero(t, second.Changed)

	got := f.drafts(t, up.Session.ID)
	assert.Equal(t, landlord, got[0].CounterpartyID)
	assert.Equal(t, model.MatchedByRule, got[0].MatchedBy)
	assert.Equal(t, rule.ID, got[0].MatchedRuleID)
	assert.Equal(t, rentDraft.ArticleID, got[0].ArticleID)
	assert.Equal(t, rent, got[1].ArticleID, "locked article survives")
	assert.Equal(t, model.MatchedByManual, got[1].MatchedBy)

	stored, err := f.store.GetRule(ctx, f.company.ID, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UsageCount)
}

func TestApplyRules_RolledBackChunkIsNotCounted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{StopOnError: true})
	up := f.upload(t, rentDoc(), goodsDoc())
	drafts := f.drafts(t, up.Session.ID)
	rentDraft, goodsDraft := drafts[0], drafts[1]

	landlord := f.cps["ИП Арендодатель Петров Петр"]
	rule := model.MappingRule{CompanyID: f.company.ID, RuleType: model.RuleEquals, Pattern: "ИП Арендодатель",
		TargetType: model.TargetCounterparty, TargetID: landlord, SourceField: model.SourceReceiver}
	require.NoError(t, f.store.CreateRule(ctx, &rule))

	goodsDraft.ArticleID = ""
	require.NoError(t, f.store.UpdateDraft(ctx, &goodsDraft))
	_, err := f.store.DB().Exec(`CREATE TRIGGER reject_rematch BEFORE UPDATE ON imported_operations
		WHEN NEW.id = '` + goodsDraft.ID + `'
		BEGIN SELECT RAISE(ABORT, 'update rejected'); END`)
	require.NoError(t, err)

	res, err := f.svc.ApplyRules(ctx, f.company.ID, up.Session.ID)
	require.Error(t, err)
	assert.Zero(t, res.Changed)
	assert.Zero(t, res.Matched)

	got, err := f.store.GetDraft(ctx, f.company.ID, up.Session.ID, rentDraft.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CounterpartyID, "rolled back with its chunk")
}

func TestApplyRules_SkipsConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc())
	d := f.drafts(t, up.Session.ID)[0]
	_, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{Confirmed: ptr(true)})
	require.NoError(t, err)

	res, err := f.svc.ApplyRules(ctx, f.company.ID, up.Session.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc(), goodsDoc())

	n, err := f.svc.DeleteSession(ctx, f.company.ID, up.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"import session deleted"}, f.cache.reasons)

	_, err = f.svc.DeleteSession(ctx, f.company.ID, up.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.ListDrafts(ctx, f.company.ID, up.Session.ID, store.DraftFilter{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessions_ScopedByCompany(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc())

	other := model.Company{Name: "Другая", TaxID: "7709999999", Active: true}
	require.NoError(t, f.store.CreateCompany(ctx, &other))

	_, err := f.svc.ListDrafts(ctx, other.ID, up.Session.ID, store.DraftFilter{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.ApplyRules(ctx, other.ID, up.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.ImportOperations(ctx, other.ID, up.Session.ID, ImportRequest{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.svc.DeleteSession(ctx, other.ID, up.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	page, err := f.svc.ListSessions(ctx, other.ID, store.SessionFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	page, err = f.svc.ListSessions(ctx, f.company.ID, store.SessionFilter{Status: model.SessionDraft})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestListDrafts_Counts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	up := f.upload(t, rentDoc(), goodsDoc())
	d := f.drafts(t, up.Session.ID)[0]
	_, err := f.svc.UpdateDraft(ctx, f.company.ID, up.Session.ID, d.ID, Patch{Confirmed: ptr(true)})
	require.NoError(t, err)

	page, err := f.svc.ListDrafts(ctx, f.company.ID, up.Session.ID, store.DraftFilter{Confirmed: ptr(true)})
	require.NoError(t, err)
	require.Len(t, page.Drafts, 1)
	assert.Equal(t, store.DraftCounts{Total: 2, Confirmed: 1}, page.Counts)
}
