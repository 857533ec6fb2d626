package catalog

import (
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/liamcoop/ruledefs/rules"
)

// Backend persists the set of rule set names and hands out one RuleStore per set
type Backend interface {
	// CreateRuleSet registers a new rule set; ErrRuleSetExists if taken
	CreateRuleSet(name string) error

	// DeleteRuleSet removes a rule set and its rules; ErrRuleSetNotFound if absent
	DeleteRuleSet(name string) error

	// ListRuleSets returns every registered rule set name, sorted
	ListRuleSets() ([]string, error)

	// Store returns the rule store scoped to a rule set
	Store(name string) rules.RuleStore
}

// InMemoryBackend keeps rule sets in process memory
type InMemoryBackend struct {
	stores map[string]*rules.InMemoryRuleStore
	mu     sync.RWMutex
}

// NewInMemoryBackend creates an empty in-memory backend
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		stores: make(map[string]*rules.InMemoryRuleStore),
	}
}

func (b *InMemoryBackend) CreateRuleSet(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.stores[name]; exists {
		return fmt.Errorf("rule set %s: %w", name, ErrRuleSetExists)
	}
	b.stores[name] = rules.NewInMemoryRuleStore()
	return nil
}

func (b *InMemoryBackend) DeleteRuleSet(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.stores[name]; !exists {
		return fmt.Errorf("rule set %s: %w", name, ErrRuleSetNotFound)
	}
	delete(b.stores, name)
	return nil
}

func (b *InMemoryBackend) ListRuleSets() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.stores))
	for name := range b.stores {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Store returns the set's store, or a detached empty store if the set is unknown
func (b *InMemoryBackend) Store(name string) rules.RuleStore {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if store, exists := b.stores[name]; exists {
		return store
	}
	return rules.NewInMemoryRuleStore()
}

// PostgresBackend stores rule sets in the rule_sets table; rules live in
// rule_definitions and are removed with their set.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend creates a PostgreSQL-backed catalog backend
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) CreateRuleSet(name string) error {
	result, err := b.db.Exec(`
		INSERT INTO rule_sets (name, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return fmt.Errorf("failed to create rule set: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule set %s: %w", name, ErrRuleSetExists)
	}
	return nil
}

func (b *PostgresBackend) DeleteRuleSet(name string) error {
	result, err := b.db.Exec(`DELETE FROM rule_sets WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule set %s: %w", name, ErrRuleSetNotFound)
	}
	return nil
}

func (b *PostgresBackend) ListRuleSets() ([]string, error) {
	rows, err := b.db.Query(`SELECT name FROM rule_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule sets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan rule set row: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule set rows: %w", err)
	}
	return names, nil
}

func (b *PostgresBackend) Store(name string) rules.RuleStore {
	return rules.NewPostgresRuleStore(b.db, name)
}
