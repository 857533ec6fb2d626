package rules

import (
	"strings"
	"time"
)

// Rule is a stored rule definition that belongs to a rule set
type Rule struct {
	ID         string
	RuleSet    string
	Definition RuleDefinition
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// compareRules orders stored rules the way their definitions fire, falling
// back to creation time so the order is stable.
func compareRules(a, b *Rule) int {
	if c := Compare(a.Definition, b.Definition); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
