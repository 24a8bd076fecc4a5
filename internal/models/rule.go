// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autobrr/yanami/internal/dbinterface"
)

var ErrRuleNotFound = errors.New("rule not found")

// Rule is a named regular expression used to tag incoming RSS items.
// Cost orders rules when several could apply; lower wins.
type Rule struct {
	Name string `json:"name"`
	Re   string `json:"re"`
	Cost int    `json:"cost"`
}

// RuleStore persists matching rules.
type RuleStore struct {
	db dbinterface.Querier
}

func NewRuleStore(db dbinterface.Querier) *RuleStore {
	return &RuleStore{db: db}
}

// List retrieves all rules, lowest cost first, name as tiebreaker.
func (s *RuleStore) List(ctx context.Context) ([]*Rule, error) {
	query := `SELECT name, re, cost FROM rule ORDER BY cost, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.Name, &rule.Re, &rule.Cost); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// Get retrieves one rule by name.
func (s *RuleStore) Get(ctx context.Context, name string) (*Rule, error) {
	query := `SELECT name, re, cost FROM rule WHERE name = ?`

	var rule Rule
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&rule.Name, &rule.Re, &rule.Cost); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("get rule %s: %w", name, err)
	}
	return &rule, nil
}

// Set inserts or replaces a rule by name.
func (s *RuleStore) Set(ctx context.Context, rule *Rule) error {
	query := `
		INSERT INTO rule (name, re, cost)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET re = excluded.re, cost = excluded.cost
	`

	if _, err := s.db.ExecContext(ctx, query, rule.Name, rule.Re, rule.Cost); err != nil {
		return fmt.Errorf("set rule %s: %w", rule.Name, err)
	}
	return nil
}

// Delete removes a rule by name.
func (s *RuleStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rule WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", name, err)
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}
