package rules

import (
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"strings"
)

// Defaults applied when a rule document omits the optional fields
const (
	DefaultName        = "rule"
	DefaultDescription = "description"
	DefaultPriority    = math.MaxInt32 - 1
)

// RuleDefinition is the structural description of a rule before any evaluation.
// Condition and actions are opaque expression text handed to an engine later on.
// A RuleDefinition is immutable: fields are only reachable through accessors.
type RuleDefinition struct {
	name        string
	description string
	priority    int
	condition   string
	actions     []string
}

// NewRuleDefinition builds a definition from already-defaulted values.
// It fails with an InvalidRuleDefinitionError when the condition is blank or
// there are no actions.
func NewRuleDefinition(name, description string, priority int, condition string, actions []string) (RuleDefinition, error) {
	if strings.TrimSpace(condition) == "" {
		return RuleDefinition{}, &InvalidRuleDefinitionError{
			Index:  -1,
			Field:  "condition",
			Reason: "the rule condition must be specified",
		}
	}
	if len(actions) == 0 {
		return RuleDefinition{}, &InvalidRuleDefinitionError{
			Index:  -1,
			Field:  "actions",
			Reason: "the rule action(s) must be specified",
		}
	}

	return RuleDefinition{
		name:        name,
		description: description,
		priority:    priority,
		condition:   condition,
		actions:     slices.Clone(actions),
	}, nil
}

// Name returns the rule name, DefaultName when the document omitted it
func (d RuleDefinition) Name() string { return d.name }

// Description returns the rule description, DefaultDescription when omitted
func (d RuleDefinition) Description() string { return d.description }

// Priority returns the firing priority; lower values fire first
func (d RuleDefinition) Priority() int { return d.priority }

// Condition returns the condition expression text as written
func (d RuleDefinition) Condition() string { return d.condition }

// Actions returns a copy of the actions in declaration order
func (d RuleDefinition) Actions() []string {
	return slices.Clone(d.actions)
}

// IsZero reports whether d was never constructed
func (d RuleDefinition) IsZero() bool {
	return d.condition == "" && len(d.actions) == 0
}

// Equal reports whether two definitions carry identical fields
func (d RuleDefinition) Equal(other RuleDefinition) bool {
	return d.name == other.name &&
		d.description == other.description &&
		d.priority == other.priority &&
		d.condition == other.condition &&
		slices.Equal(d.actions, other.actions)
}

type ruleDefinitionJSON struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	Condition   string   `json:"condition"`
	Actions     []string `json:"actions"`
}

// MarshalJSON implements json.Marshaler
func (d RuleDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleDefinitionJSON{
		Name:        d.name,
		Description: d.description,
		Priority:    d.priority,
		Condition:   d.condition,
		Actions:     d.actions,
	})
}

// UnmarshalJSON implements json.Unmarshaler. All five fields are expected;
// use a Reader to parse documents that rely on defaults.
func (d *RuleDefinition) UnmarshalJSON(data []byte) error {
	var raw ruleDefinitionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	def, err := NewRuleDefinition(raw.Name, raw.Description, raw.Priority, raw.Condition, raw.Actions)
	if err != nil {
		return err
	}
	*d = def
	return nil
}

// Compare orders definitions by priority (lower first), then by name.
func Compare(a, b RuleDefinition) int {
	if c := cmp.Compare(a.priority, b.priority); c != 0 {
		return c
	}
	return strings.Compare(a.name, b.name)
}

// SortByPriority sorts definitions in firing order, keeping declaration order
// for definitions that compare equal.
func SortByPriority(defs []RuleDefinition) {
	slices.SortStableFunc(defs, Compare)
}
