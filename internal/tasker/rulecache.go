// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tasker

import (
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/yanami/internal/models"
)

// CompiledRule is one tagging rule with its regex ready to run.
type CompiledRule struct {
	Name string
	Src  string
	Cost int
	Re   *regexp.Regexp
}

// ruleCache holds compiled rules in a stable order: surviving entries
// keep their position across reconciliations, new rules append. Tagging
// scans in this order, so a rule's position is part of its behavior.
type ruleCache struct {
	mu      sync.Mutex
	entries []*CompiledRule
}

// Reconcile brings the cache in line with the persisted rule set.
// Unchanged entries keep their compiled regex and position, changed
// entries are replaced by a fresh struct in the same position, deleted
// entries drop, and new entries append in the order given. Rules whose
// regex does not compile are skipped with a log. Entries are never
// mutated once handed out, so snapshots taken before a reconciliation
// keep seeing the rules they started with.
func (c *ruleCache) Reconcile(rules []*models.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byName := make(map[string]*models.Rule, len(rules))
	for _, r := range rules {
		byName[r.Name] = r
	}

	kept := c.entries[:0]
	seen := make(map[string]struct{}, len(rules))
	for _, entry := range c.entries {
		rule, ok := byName[entry.Name]
		if !ok {
			continue
		}
		seen[entry.Name] = struct{}{}
		if rule.Re == entry.Src && rule.Cost == entry.Cost {
			kept = append(kept, entry)
			continue
		}
		re := entry.Re
		if rule.Re != entry.Src {
			var err error
			re, err = regexp.Compile(rule.Re)
			if err != nil {
				log.Warn().Err(err).Str("rule", rule.Name).Msg("invalid rule regex, dropping from cache")
				delete(seen, entry.Name)
				continue
			}
		}
		kept = append(kept, &CompiledRule{Name: entry.Name, Src: rule.Re, Cost: rule.Cost, Re: re})
	}
	c.entries = kept

	for _, rule := range rules {
		if _, ok := seen[rule.Name]; ok {
			continue
		}
		re, err := regexp.Compile(rule.Re)
		if err != nil {
			log.Warn().Err(err).Str("rule", rule.Name).Msg("invalid rule regex, skipping")
			continue
		}
		c.entries = append(c.entries, &CompiledRule{Name: rule.Name, Src: rule.Re, Cost: rule.Cost, Re: re})
	}
}

// Snapshot returns the current entries in cache order. The slice is a
// copy and entries are immutable, so the snapshot stays valid while
// later reconciliations run.
func (c *ruleCache) Snapshot() []*CompiledRule {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*CompiledRule, len(c.entries))
	copy(out, c.entries)
	return out
}

// tagItem returns the name of the first rule in cache order that
// matches the title, or "" when none does.
func tagItem(rules []*CompiledRule, title string) string {
	for _, rule := range rules {
		if rule.Re.MatchString(title) {
			return rule.Name
		}
	}
	return ""
}
