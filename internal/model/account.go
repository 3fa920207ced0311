package model

// Company is the tenant every other entity is scoped to.
type Company struct {
	ID     string
	Name   string
	TaxID  string // ИНН, 10 or 12 digits
	Active bool
}

// Account is one of the company's own bank accounts.
type Account struct {
	ID        string
	CompanyID string
	Name      string
	Number    string // 20-digit settlement account number
	Currency  string
	Active    bool
}

// ArticleCategory splits cash-flow articles by the direction they apply to.
type ArticleCategory string

const (
	ArticleIncome  ArticleCategory = "income"
	ArticleExpense ArticleCategory = "expense"
)

// Article is a cash-flow article (ledger category).
type Article struct {
	ID        string
	CompanyID string
	Name      string
	Category  ArticleCategory
	Active    bool
}

// Counterparty is a customer, supplier or any other external party.
type Counterparty struct {
	ID        string
	CompanyID string
	Name      string
	TaxID     string
	Active    bool
}

// ValidTaxID reports whether s is a 10 or 12 digit ИНН.
func ValidTaxID(s string) bool {
	return (len(s) == 10 || len(s) == 12) && allDigits(s)
}

// ValidAccountNumber reports whether s is a 20 digit account number.
func ValidAccountNumber(s string) bool {
	return len(s) == 20 && allDigits(s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
