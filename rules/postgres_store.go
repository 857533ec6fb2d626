package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL.
// Every query is scoped to one rule set.
type PostgresRuleStore struct {
	db      *sql.DB
	ruleSet string
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore for a rule set
func NewPostgresRuleStore(db *sql.DB, ruleSet string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:      db,
		ruleSet: ruleSet,
	}
}

const selectRuleColumns = `
	SELECT id, rule_set, name, description, priority, condition_expr, actions, active, created_at, updated_at
	FROM rule_definitions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r                       Rule
		name, description, cond string
		priority                int
		actions                 []string
	)
	if err := row.Scan(&r.ID, &r.RuleSet, &name, &description, &priority, &cond,
		pq.Array(&actions), &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	def, err := NewRuleDefinition(name, description, priority, cond, actions)
	if err != nil {
		return nil, fmt.Errorf("stored rule %s is invalid: %w", r.ID, err)
	}
	r.Definition = def
	return &r, nil
}

// Add inserts a new rule into the database
func (s *PostgresRuleStore) Add(rule *Rule) error {
	return s.AddAll([]*Rule{rule})
}

// AddAll inserts a batch of rules in a single transaction
func (s *PostgresRuleStore) AddAll(rules []*Rule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, rule := range rules {
		var exists bool
		err := tx.QueryRow(`
			SELECT EXISTS(SELECT 1 FROM rule_definitions WHERE id = $1)
		`, rule.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check rule existence: %w", err)
		}
		if exists {
			return fmt.Errorf("rule with ID %s: %w", rule.ID, ErrRuleExists)
		}

		def := rule.Definition
		_, err = tx.Exec(`
			INSERT INTO rule_definitions
				(id, rule_set, name, description, priority, condition_expr, actions, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, rule.ID, s.ruleSet, def.Name(), def.Description(), def.Priority(), def.Condition(),
			pq.Array(def.Actions()), rule.Active, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", rule.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}

	for _, rule := range rules {
		rule.RuleSet = s.ruleSet
		rule.CreatedAt = now
		rule.UpdatedAt = now
	}
	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(selectRuleColumns+`
		WHERE id = $1 AND rule_set = $2
	`, id, s.ruleSet)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns every rule of the rule set in firing order
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.query(`
		WHERE rule_set = $1
		ORDER BY priority ASC, name ASC, created_at ASC, id ASC
	`)
}

// ListActive returns the active rules of the rule set in firing order
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.query(`
		WHERE rule_set = $1 AND active = true
		ORDER BY priority ASC, name ASC, created_at ASC, id ASC
	`)
}

func (s *PostgresRuleStore) query(where string) ([]*Rule, error) {
	rows, err := s.db.Query(selectRuleColumns+where, s.ruleSet)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// Update modifies an existing rule
func (s *PostgresRuleStore) Update(rule *Rule) error {
	existing, err := s.Get(rule.ID)
	if err != nil {
		return err
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	def := rule.Definition
	result, err := s.db.Exec(`
		UPDATE rule_definitions
		SET name = $1, description = $2, priority = $3, condition_expr = $4, actions = $5,
			active = $6, updated_at = $7
		WHERE id = $8 AND rule_set = $9
	`, def.Name(), def.Description(), def.Priority(), def.Condition(), pq.Array(def.Actions()),
		rule.Active, rule.UpdatedAt, rule.ID, s.ruleSet)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}

	return nil
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rule_definitions
		WHERE id = $1 AND rule_set = $2
	`, id, s.ruleSet)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	return nil
}
