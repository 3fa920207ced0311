// Package rules manages a company's mapping rules and learns new ones from
// manually classified drafts.
package rules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/bankimport/internal/model"
	"github.com/cleared-dev/bankimport/internal/store"
)

var (
	// ErrRuleNotFound is returned when a rule does not exist for the company.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrInvalidRule is returned when a rule fails validation.
	ErrInvalidRule = errors.New("invalid rule")
)

// Store is the persistence the service needs. *store.Store and *store.Tx
// implement it.
type Store interface {
	CreateRule(ctx context.Context, rule *model.MappingRule) error
	UpdateRule(ctx context.Context, rule model.MappingRule) error
	DeleteRule(ctx context.Context, companyID, ruleID string) error
	GetRule(ctx context.Context, companyID, ruleID string) (model.MappingRule, error)
	ListRules(ctx context.Context, companyID string) ([]model.MappingRule, error)
	RuleExists(ctx context.Context, rule model.MappingRule) (bool, error)
}

// Service provides mapping rule CRUD with validation.
type Service struct {
	store Store
	log   zerolog.Logger
}

// NewService creates a rules Service.
func NewService(s Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log}
}

// Validate checks a rule's type, target, source field and pattern.
func Validate(r model.MappingRule) error {
	switch r.RuleType {
	case model.RuleEquals, model.RuleContains, model.RuleRegex, model.RuleAlias:
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, r.RuleType)
	}
	switch r.TargetType {
	case model.TargetArticle, model.TargetCounterparty, model.TargetAccount, model.TargetOperationType:
	default:
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidRule, r.TargetType)
	}
	switch r.SourceField {
	case model.SourceDescription, model.SourcePayer, model.SourceReceiver, model.SourceTaxID:
	default:
		return fmt.Errorf("%w: unknown source field %q", ErrInvalidRule, r.SourceField)
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}
	if strings.TrimSpace(r.TargetID) == "" {
		return fmt.Errorf("%w: empty target", ErrInvalidRule)
	}
	if r.RuleType == model.RuleAlias && r.TargetType != model.TargetCounterparty {
		return fmt.Errorf("%w: alias rules only target counterparties", ErrInvalidRule)
	}
	if r.RuleType == model.RuleRegex {
		if _, err := regexp.Compile("(?i)" + r.Pattern); err != nil {
			return fmt.Errorf("%w: pattern does not compile: %v", ErrInvalidRule, err)
		}
	}
	if r.TargetType == model.TargetOperationType {
		if d, ok := model.ParseDirection(r.TargetID); !ok || !d.Determined() {
			return fmt.Errorf("%w: operation type must be income, expense or transfer", ErrInvalidRule)
		}
	}
	return nil
}

// Create validates and stores a new rule for companyID.
func (s *Service) Create(ctx context.Context, companyID string, r model.MappingRule) (model.MappingRule, error) {
	r.CompanyID = companyID
	r.ID = ""
	r.UsageCount = 0
	r.LastUsedAt = nil
	if err := Validate(r); err != nil {
		return model.MappingRule{}, err
	}
	if err := s.store.CreateRule(ctx, &r); err != nil {
		return model.MappingRule{}, err
	}
	s.log.Info().Str("company_id", companyID).Str("rule_id", r.ID).
		Str("type", string(r.RuleType)).Str("target", string(r.TargetType)).Msg("rule created")
	return r, nil
}

// Get returns one rule.
func (s *Service) Get(ctx context.Context, companyID, ruleID string) (model.MappingRule, error) {
	r, err := s.store.GetRule(ctx, companyID, ruleID)
	return r, notFound(err, ruleID)
}

// List returns the company's rules in evaluation tie-break order.
func (s *Service) List(ctx context.Context, companyID string) ([]model.MappingRule, error) {
	return s.store.ListRules(ctx, companyID)
}

// Update validates and rewrites a rule. Usage statistics are preserved.
func (s *Service) Update(ctx context.Context, companyID string, r model.MappingRule) (model.MappingRule, error) {
	r.CompanyID = companyID
	if err := Validate(r); err != nil {
		return model.MappingRule{}, err
	}
	if err := s.store.UpdateRule(ctx, r); err != nil {
		return model.MappingRule{}, notFound(err, r.ID)
	}
	return s.Get(ctx, companyID, r.ID)
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, companyID, ruleID string) error {
	if err := s.store.DeleteRule(ctx, companyID, ruleID); err != nil {
		return notFound(err, ruleID)
	}
	s.log.Info().Str("company_id", companyID).Str("rule_id", ruleID).Msg("rule deleted")
	return nil
}

func notFound(err error, ruleID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rule %s: %w", ruleID, ErrRuleNotFound)
	}
	return err
}

// Learn stores equals rules derived from a manually classified draft: the
// counterparty-side name maps to the chosen counterparty and article.
// Rules identical to an existing one are skipped. It returns the rules
// created.
func Learn(ctx context.Context, s Store, d model.ImportedOperation, now time.Time) ([]model.MappingRule, error) {
	if d.MatchedBy != model.MatchedByManual {
		return nil, nil
	}
	field, name := counterpartyName(d)
	if name == "" {
		return nil, nil
	}

	var candidates []model.MappingRule
	if d.CounterpartyID != "" {
		candidates = append(candidates, model.MappingRule{TargetType: model.TargetCounterparty, TargetID: d.CounterpartyID})
	}
	if d.ArticleID != "" {
		candidates = append(candidates, model.MappingRule{TargetType: model.TargetArticle, TargetID: d.ArticleID})
	}

	var created []model.MappingRule
	for _, r := range candidates {
		r.CompanyID = d.CompanyID
		r.RuleType = model.RuleEquals
		r.Pattern = name
		r.SourceField = field
		r.CreatedAt = now

		exists, err := s.RuleExists(ctx, r)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := s.CreateRule(ctx, &r); err != nil {
			return created, fmt.Errorf("learning %s rule: %w", r.TargetType, err)
		}
		created = append(created, r)
	}
	return created, nil
}

func counterpartyName(d model.ImportedOperation) (model.SourceField, string) {
	switch d.Direction {
	case model.DirectionExpense:
		return model.SourceReceiver, strings.TrimSpace(d.Source.Receiver)
	case model.DirectionIncome:
		return model.SourcePayer, strings.TrimSpace(d.Source.Payer)
	}
	return "", ""
}
