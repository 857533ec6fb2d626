package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// ConditionChecker inspects condition text before a definition is stored.
// The Reader never calls it; condition text stays opaque to parsing.
type ConditionChecker interface {
	Check(condition string) error
}

// CELConditionChecker verifies that conditions are syntactically valid CEL.
// It only parses: identifiers are not resolved and nothing is evaluated.
type CELConditionChecker struct {
	env *cel.Env
}

// NewCELConditionChecker creates a checker with an empty CEL environment
func NewCELConditionChecker() (*CELConditionChecker, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELConditionChecker{env: env}, nil
}

// Check parses condition and returns the CEL syntax issues, if any
func (c *CELConditionChecker) Check(condition string) error {
	_, issues := c.env.Parse(condition)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("condition %q does not parse: %w", condition, issues.Err())
	}
	return nil
}

// CheckDefinitions runs checker over every condition and reports the first
// failure as an InvalidRuleDefinitionError carrying its position.
func CheckDefinitions(checker ConditionChecker, defs []RuleDefinition) error {
	for i, def := range defs {
		if err := checker.Check(def.Condition()); err != nil {
			return &InvalidRuleDefinitionError{
				Index:  i,
				Field:  "condition",
				Reason: fmt.Sprintf("rule %s: %v", def.Name(), err),
			}
		}
	}
	return nil
}
