package rules

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// RuleStore manages persistence of rule definitions for a single rule set
type RuleStore interface {
	// Add a new rule
	Add(rule *Rule) error

	// AddAll adds every rule or none of them
	AddAll(rules []*Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List returns every rule, active or not, in firing order
	List() ([]*Rule, error)

	// ListActive returns active rules in firing order
	ListActive() ([]*Rule, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

// Add adds a new rule to the store and stamps its timestamps
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	return s.AddAll([]*Rule{rule})
}

// AddAll adds a batch of rules atomically
func (s *InMemoryRuleStore) AddAll(rules []*Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if _, exists := s.rules[rule.ID]; exists || seen[rule.ID] {
			return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
		}
		seen[rule.ID] = true
	}

	now := time.Now()
	for _, rule := range rules {
		rule.CreatedAt = now
		rule.UpdatedAt = now
		s.rules[rule.ID] = rule
	}
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}
	return rule, nil
}

// List returns all rules ordered by priority then name
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	return s.list(func(*Rule) bool { return true }), nil
}

// ListActive returns all active rules ordered by priority then name
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	return s.list(func(r *Rule) bool { return r.Active }), nil
}

func (s *InMemoryRuleStore) list(keep func(*Rule) bool) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if keep(rule) {
			out = append(out, rule)
		}
	}
	slices.SortFunc(out, compareRules)
	return out
}

// Update replaces an existing rule, preserving CreatedAt
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule with ID %s: %w", id, ErrRuleNotFound)
	}

	delete(s.rules, id)
	return nil
}
