package model

import "time"

// RuleType selects how a mapping rule's pattern is compared.
type RuleType string

const (
	RuleEquals   RuleType = "equals"
	RuleContains RuleType = "contains"
	RuleRegex    RuleType = "regex"
	RuleAlias    RuleType = "alias"
)

// TargetType is the kind of entity a mapping rule resolves to.
type TargetType string

const (
	TargetArticle       TargetType = "article"
	TargetCounterparty  TargetType = "counterparty"
	TargetAccount       TargetType = "account"
	TargetOperationType TargetType = "operationType"
)

// SourceField is the document field a rule inspects.
type SourceField string

const (
	SourceDescription SourceField = "description"
	SourcePayer       SourceField = "payer"
	SourceReceiver    SourceField = "receiver"
	SourceTaxID       SourceField = "inn"
)

// MappingRule maps a pattern on a document field to a ledger entity.
type MappingRule struct {
	ID          string
	CompanyID   string
	RuleType    RuleType
	Pattern     string
	TargetType  TargetType
	TargetID    string
	SourceField SourceField
	UsageCount  int
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}
