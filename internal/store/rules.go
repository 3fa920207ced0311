package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cleared-dev/bankimport/internal/id"
	"github.com/cleared-dev/bankimport/internal/model"
)

const ruleColumns = `id, company_id, rule_type, pattern, target_type, target_id, source_field,
	usage_count, COALESCE(last_used_at, ''), created_at`

func scanRule(s scanner) (model.MappingRule, error) {
	var (
		r                 model.MappingRule
		ruleType, target  string
		field             string
		lastUsed, created string
	)
	if err := s.Scan(&r.ID, &r.CompanyID, &ruleType, &r.Pattern, &target, &r.TargetID, &field,
		&r.UsageCount, &lastUsed, &created); err != nil {
		return r, err
	}
	r.RuleType = model.RuleType(ruleType)
	r.TargetType = model.TargetType(target)
	r.SourceField = model.SourceField(field)

	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, fmt.Errorf("parsing created_at: %w", err)
	}
	if lastUsed != "" {
		t, err := parseTime(lastUsed)
		if err != nil {
			return r, fmt.Errorf("parsing last_used_at: %w", err)
		}
		r.LastUsedAt = &t
	}
	return r, nil
}

// CreateRule inserts rule, assigning ID and CreatedAt when empty.
func (r Repo) CreateRule(ctx context.Context, rule *model.MappingRule) error {
	if rule.ID == "" {
		rule.ID = id.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO mapping_rules (id, company_id, rule_type, pattern, target_type, target_id, source_field, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rule.ID, rule.CompanyID, string(rule.RuleType), rule.Pattern, string(rule.TargetType),
		rule.TargetID, string(rule.SourceField), formatTime(rule.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// UpdateRule rewrites the editable columns of a rule. Usage statistics are
// left alone.
func (r Repo) UpdateRule(ctx context.Context, rule model.MappingRule) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE mapping_rules
		SET rule_type = ?, pattern = ?, target_type = ?, target_id = ?, source_field = ?
		WHERE company_id = ? AND id = ?`,
		string(rule.RuleType), rule.Pattern, string(rule.TargetType), rule.TargetID, string(rule.SourceField),
		rule.CompanyID, rule.ID)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	if n, _ := rowsAffected(res); n == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	return nil
}

// DeleteRule removes a rule.
func (r Repo) DeleteRule(ctx context.Context, companyID, ruleID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM mapping_rules WHERE company_id = ? AND id = ?`, companyID, ruleID)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if n, _ := rowsAffected(res); n == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

// GetRule returns one rule.
func (r Repo) GetRule(ctx context.Context, companyID, ruleID string) (model.MappingRule, error) {
	rule, err := scanRule(r.q.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM mapping_rules WHERE company_id = ? AND id = ?`, companyID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.MappingRule{}, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return model.MappingRule{}, fmt.Errorf("querying rule: %w", err)
	}
	return rule, nil
}

// ListRules returns the company's rules in creation order.
func (r Repo) ListRules(ctx context.Context, companyID string) ([]model.MappingRule, error) {
	rules, err := queryAll(ctx, r.q,
		`SELECT `+ruleColumns+` FROM mapping_rules WHERE company_id = ? ORDER BY created_at, id`,
		[]any{companyID}, scanRule)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return rules, nil
}

// RuleExists reports whether an identical rule is already stored.
func (r Repo) RuleExists(ctx context.Context, rule model.MappingRule) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mapping_rules
		WHERE company_id = ? AND rule_type = ? AND pattern = ? AND target_type = ? AND source_field = ?`,
		rule.CompanyID, string(rule.RuleType), rule.Pattern, string(rule.TargetType), string(rule.SourceField),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking rule: %w", err)
	}
	return n > 0, nil
}

// IncrementRuleUsage bumps usage_count in a single statement so concurrent
// sessions never lose an increment.
func (r Repo) IncrementRuleUsage(ctx context.Context, companyID, ruleID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE mapping_rules
		SET usage_count = usage_count + 1, last_used_at = ?
		WHERE company_id = ? AND id = ?`,
		formatTime(at), companyID, ruleID)
	if err != nil {
		return fmt.Errorf("incrementing rule usage: %w", err)
	}
	return nil
}
