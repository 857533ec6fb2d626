package rules

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// ruleDocument is the typed view of one rule node. Optional fields are
// pointers so that an absent key can be told apart from a zero value.
type ruleDocument struct {
	Name        *string        `yaml:"name" json:"name"`
	Description *string        `yaml:"description" json:"description"`
	Priority    *priorityValue `yaml:"priority" json:"priority"`
	Condition   *string        `yaml:"condition" json:"condition"`
	Actions     []string       `yaml:"actions" json:"actions"`
}

var ruleDocumentFields = map[string]bool{
	"name":        true,
	"description": true,
	"priority":    true,
	"condition":   true,
	"actions":     true,
}

// priorityValue only accepts integer scalars within the 32-bit range
type priorityValue int

func (p *priorityValue) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!int" {
		return fmt.Errorf("line %d: priority must be an integer, got %q", n.Line, n.Value)
	}
	var v int64
	if err := n.Decode(&v); err != nil {
		return fmt.Errorf("line %d: priority %q: %w", n.Line, n.Value, err)
	}
	return p.set(v)
}

func (p *priorityValue) UnmarshalJSON(data []byte) error {
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("priority must be an integer: %w", err)
	}
	return p.set(v)
}

func (p *priorityValue) set(v int64) error {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("priority %d is outside the range [%d, %d]", v, math.MinInt32, math.MaxInt32)
	}
	*p = priorityValue(v)
	return nil
}

// rawDocument is one tokenized document waiting to be decoded
type rawDocument struct {
	keys      []string
	fromArray bool
	decode    func(*ruleDocument) error
}

func orDefault[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

func (doc ruleDocument) definition() (RuleDefinition, error) {
	return NewRuleDefinition(
		orDefault(doc.Name, DefaultName),
		orDefault(doc.Description, DefaultDescription),
		int(orDefault(doc.Priority, DefaultPriority)),
		orDefault(doc.Condition, ""),
		doc.Actions,
	)
}
