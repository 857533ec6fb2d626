package catalog

import (
	"fmt"
	"regexp"
)

const maxRuleSetNameLength = 100

var ruleSetNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// ValidateRuleSetName checks a rule set name: 1-100 characters, starting with a
// letter or underscore, followed by letters, digits, underscores or hyphens.
func ValidateRuleSetName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidRuleSetName)
	}
	if len(name) > maxRuleSetNameLength {
		return fmt.Errorf("%w: length %d exceeds maximum of %d characters", ErrInvalidRuleSetName, len(name), maxRuleSetNameLength)
	}
	if !ruleSetNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match pattern %s", ErrInvalidRuleSetName, name, ruleSetNamePattern)
	}
	return nil
}
