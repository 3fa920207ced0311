package ledger

import (
	"fmt"
	"strings"

	"github.com/cleared-dev/bankimport/internal/model"
)

// ValidationError describes one missing or unusable field on a draft.
type ValidationError struct {
	DraftID string
	Field   model.Field
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("draft %s: %s: %s", e.DraftID, e.Field, e.Message)
}

// ValidationErrors is returned when any selected draft cannot be posted. Its
// message names every offending draft and field.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Drafts lists the distinct draft ids that failed.
func (errs ValidationErrors) Drafts() []string {
	seen := map[string]bool{}
	var ids []string
	for _, e := range errs {
		if !seen[e.DraftID] {
			seen[e.DraftID] = true
			ids = append(ids, e.DraftID)
		}
	}
	return ids
}

// Catalog resolves the entities a posting refers to.
type Catalog interface {
	Account(id string) (model.Account, bool)
	AccountByNumber(number string) (model.Account, bool)
	Article(id string) (model.Article, bool)
}

// ValidateDrafts checks that every draft carries what posting needs:
// a determined direction and a currency always, article and account for
// income and expense, and two resolvable own accounts for transfers.
// It returns nil when all drafts are valid.
func ValidateDrafts(drafts []model.ImportedOperation, cat Catalog) error {
	var errs ValidationErrors
	for _, d := range drafts {
		errs = append(errs, validateDraft(d, cat)...)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateDraft(d model.ImportedOperation, cat Catalog) []ValidationError {
	var errs []ValidationError
	add := func(f model.Field, format string, args ...any) {
		errs = append(errs, ValidationError{DraftID: d.ID, Field: f, Message: fmt.Sprintf(format, args...)})
	}

	if d.Currency == "" {
		add(model.FieldCurrency, "currency is required")
	}

	switch d.Direction {
	case model.DirectionIncome, model.DirectionExpense:
		if d.ArticleID == "" {
			add(model.FieldArticle, "article is required for %s", d.Direction)
		} else if art, ok := cat.Article(d.ArticleID); !ok || !art.Active {
			add(model.FieldArticle, "unknown article %s", d.ArticleID)
		} else if art.Category != d.Direction.ArticleCategory() {
			add(model.FieldArticle, "article %q is %s, draft is %s", art.Name, art.Category, d.Direction)
		}
		if d.AccountID == "" {
			add(model.FieldAccount, "account is required for %s", d.Direction)
		} else if acc, ok := cat.Account(d.AccountID); !ok || !acc.Active {
			add(model.FieldAccount, "unknown account %s", d.AccountID)
		}
	case model.DirectionTransfer:
		if _, ok := cat.AccountByNumber(d.Source.PayerAccount); !ok {
			add(model.FieldAccount, "payer account %q is not an own account", d.Source.PayerAccount)
		}
		if _, ok := cat.AccountByNumber(d.Source.ReceiverAccount); !ok {
			add(model.FieldAccount, "receiver account %q is not an own account", d.Source.ReceiverAccount)
		}
	default:
		add(model.FieldDirection, "direction is not determined")
	}
	return errs
}
