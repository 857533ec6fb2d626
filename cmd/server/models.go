package main

import (
	"time"

	"github.com/liamcoop/ruledefs/rules"
)

// API Request and Response Models

// CreateRuleSetRequest represents the request body for creating a rule set
type CreateRuleSetRequest struct {
	Name string `json:"name" example:"people"`
}

// RuleSetResponse represents a rule set in API responses
type RuleSetResponse struct {
	Name string `json:"name" example:"people"`
}

// RuleSetsListResponse represents the response for listing rule sets
type RuleSetsListResponse struct {
	RuleSets []string `json:"ruleSets"`
}

// SetActiveRequest represents the request body for activating a rule
type SetActiveRequest struct {
	Active *bool `json:"active" example:"true"`
}

// RuleResponse represents a stored rule in API responses
type RuleResponse struct {
	ID          string    `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	RuleSet     string    `json:"ruleSet" example:"people"`
	Name        string    `json:"name" example:"adult rule"`
	Description string    `json:"description" example:"set the person as adult"`
	Priority    int       `json:"priority" example:"1"`
	Condition   string    `json:"condition" example:"person.age > 18"`
	Actions     []string  `json:"actions"`
	Active      bool      `json:"active" example:"true"`
	CreatedAt   time.Time `json:"createdAt" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time `json:"updatedAt" example:"2024-01-15T10:30:00Z"`
}

// RulesListResponse represents the response for listing or importing rules
type RulesListResponse struct {
	Rules []RuleResponse `json:"rules"`
}

// ValidateResponse represents the result of a dry-run validation
type ValidateResponse struct {
	Valid bool                   `json:"valid" example:"true"`
	Count int                    `json:"count" example:"2"`
	Rules []rules.RuleDefinition `json:"rules"`
}

// ErrorResponse represents an error response. Index is the zero-based
// document position when the error concerns one document.
type ErrorResponse struct {
	Error   string `json:"error" example:"rule documents rejected"`
	Details string `json:"details,omitempty"`
	Index   *int   `json:"index,omitempty" example:"1"`
	Field   string `json:"field,omitempty" example:"condition"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string `json:"status" example:"healthy"`
	Storage        string `json:"storage" example:"postgres"`
	RuleSetsLoaded int    `json:"ruleSetsLoaded" example:"3"`
}

func toRuleResponse(r *rules.Rule) RuleResponse {
	def := r.Definition
	return RuleResponse{
		ID:          r.ID,
		RuleSet:     r.RuleSet,
		Name:        def.Name(),
		Description: def.Description(),
		Priority:    def.Priority(),
		Condition:   def.Condition(),
		Actions:     def.Actions(),
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toRuleResponses(list []*rules.Rule) []RuleResponse {
	out := make([]RuleResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toRuleResponse(r))
	}
	return out
}
