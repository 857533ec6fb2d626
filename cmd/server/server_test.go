package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/liamcoop/ruledefs/catalog"
	"github.com/liamcoop/ruledefs/internal/metrics"
	"github.com/liamcoop/ruledefs/rules"
)

const peopleRules = `name: adult rule
description: set the person as adult
priority: 1
condition: person.age > 18
actions:
  - person.setAdult(true);
---
name: weather rule
priority: 2
condition: rain == true
actions:
  - umbrella();
`

func newTestServer(t *testing.T, opts ...catalog.Option) *httptest.Server {
	t.Helper()

	m := metrics.New()
	c := catalog.New(catalog.NewInMemoryBackend(), append(opts, catalog.WithMetrics(m))...)
	ts := httptest.NewServer(NewServer(c, m, nil, rules.FormatYAML))
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, contentType string, body io.Reader) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("Failed to decode response %s: %v", data, err)
	}
	return v
}

func createRuleSet(t *testing.T, baseURL, name string) {
	t.Helper()

	body, _ := json.Marshal(CreateRuleSetRequest{Name: name})
	status, data := doRequest(t, "POST", baseURL+"/api/v1/rulesets", "application/json", bytes.NewReader(body))
	if status != http.StatusCreated {
		t.Fatalf("Create rule set returned %d: %s", status, data)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, data := doRequest(t, "GET", ts.URL+"/api/v1/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	health := decode[HealthResponse](t, data)
	if health.Status != "healthy" || health.Storage != "memory" {
		t.Errorf("Unexpected health response: %+v", health)
	}
}

// TestImportWorkflow covers rule set creation, import, listing and removal
func TestImportWorkflow(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/api/v1"

	createRuleSet(t, ts.URL, "people")

	status, data := doRequest(t, "POST", base+"/rulesets/people/rules", "application/yaml", strings.NewReader(peopleRules))
	if status != http.StatusCreated {
		t.Fatalf("Import returned %d: %s", status, data)
	}
	imported := decode[RulesListResponse](t, data)
	if len(imported.Rules) != 2 {
		t.Fatalf("Expected 2 imported rules, got %d", len(imported.Rules))
	}
	adult := imported.Rules[0]
	if adult.Name != "adult rule" || adult.Condition != "person.age > 18" || adult.Actions[0] != "person.setAdult(true);" {
		t.Errorf("Unexpected imported rule: %+v", adult)
	}
	if imported.Rules[1].Description != rules.DefaultDescription {
		t.Errorf("Default description not applied: %+v", imported.Rules[1])
	}

	// deactivate the adult rule
	status, data = doRequest(t, "PUT", base+"/rulesets/people/rules/"+adult.ID+"/active", "application/json", strings.NewReader(`{"active": false}`))
	if status != http.StatusOK {
		t.Fatalf("Set active returned %d: %s", status, data)
	}
	if decode[RuleResponse](t, data).Active {
		t.Error("Rule should be inactive")
	}

	status, data = doRequest(t, "GET", base+"/rulesets/people/rules?active=true", "", nil)
	if status != http.StatusOK {
		t.Fatalf("List active returned %d", status)
	}
	active := decode[RulesListResponse](t, data)
	if len(active.Rules) != 1 || active.Rules[0].Name != "weather rule" {
		t.Errorf("Unexpected active rules: %+v", active.Rules)
	}

	status, data = doRequest(t, "GET", base+"/rulesets/people/rules", "", nil)
	if status != http.StatusOK || len(decode[RulesListResponse](t, data).Rules) != 2 {
		t.Errorf("List all returned %d: %s", status, data)
	}

	status, _ = doRequest(t, "GET", base+"/rulesets/people/rules/"+adult.ID, "", nil)
	if status != http.StatusOK {
		t.Errorf("Get rule returned %d", status)
	}

	status, _ = doRequest(t, "DELETE", base+"/rulesets/people/rules/"+adult.ID, "", nil)
	if status != http.StatusNoContent {
		t.Errorf("Delete rule returned %d", status)
	}
	status, _ = doRequest(t, "GET", base+"/rulesets/people/rules/"+adult.ID, "", nil)
	if status != http.StatusNotFound {
		t.Errorf("Deleted rule should return 404, got %d", status)
	}

	status, data = doRequest(t, "GET", base+"/rulesets", "", nil)
	if status != http.StatusOK || len(decode[RuleSetsListResponse](t, data).RuleSets) != 1 {
		t.Errorf("List rule sets returned %d: %s", status, data)
	}

	status, _ = doRequest(t, "DELETE", base+"/rulesets/people", "", nil)
	if status != http.StatusNoContent {
		t.Errorf("Delete rule set returned %d", status)
	}
	status, _ = doRequest(t, "GET", base+"/rulesets/people/rules", "", nil)
	if status != http.StatusNotFound {
		t.Errorf("Deleted rule set should return 404, got %d", status)
	}
}

func TestImportJSON(t *testing.T) {
	ts := newTestServer(t)
	createRuleSet(t, ts.URL, "people")

	body := `{"name": "adult rule", "condition": "person.age > 18", "actions": ["person.setAdult(true);"]}`
	status, data := doRequest(t, "POST", ts.URL+"/api/v1/rulesets/people/rules", "application/json; charset=utf-8", strings.NewReader(body))
	if status != http.StatusCreated {
		t.Fatalf("Import returned %d: %s", status, data)
	}
	imported := decode[RulesListResponse](t, data)
	if len(imported.Rules) != 1 || imported.Rules[0].Priority != rules.DefaultPriority {
		t.Errorf("Unexpected import result: %+v", imported.Rules)
	}
}

// TestErrorStatuses verifies the mapping of reader and catalog errors
func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	createRuleSet(t, ts.URL, "people")
	base := ts.URL + "/api/v1"

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		wantStatus  int
		wantIndex   *int
		wantField   string
	}{
		{
			name:       "missing condition",
			method:     "POST",
			path:       "/rulesets/people/rules",
			body:       peopleRules + "---\nname: broken\nactions: [x]\n",
			wantStatus: http.StatusUnprocessableEntity,
			wantIndex:  intPtr(2),
			wantField:  "condition",
		},
		{
			name:       "empty actions",
			method:     "POST",
			path:       "/validate",
			body:       "condition: a\nactions: []\n",
			wantStatus: http.StatusUnprocessableEntity,
			wantIndex:  intPtr(0),
			wantField:  "actions",
		},
		{
			name:       "malformed yaml",
			method:     "POST",
			path:       "/validate",
			body:       "name: [unclosed\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "priority out of range",
			method:     "POST",
			path:       "/rulesets/people/rules",
			body:       "priority: 3000000000\ncondition: a\nactions: [x]\n",
			wantStatus: http.StatusBadRequest,
			wantIndex:  intPtr(0),
		},
		{
			name:        "malformed json",
			method:      "POST",
			path:        "/validate",
			contentType: "application/json",
			body:        `{"name": `,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:       "unknown rule set",
			method:     "POST",
			path:       "/rulesets/nope/rules",
			body:       peopleRules,
			wantStatus: http.StatusNotFound,
		},
		{
			name:        "duplicate rule set",
			method:      "POST",
			path:        "/rulesets",
			contentType: "application/json",
			body:        `{"name": "people"}`,
			wantStatus:  http.StatusConflict,
		},
		{
			name:        "invalid rule set name",
			method:      "POST",
			path:        "/rulesets",
			contentType: "application/json",
			body:        `{"name": "no spaces allowed"}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "missing active flag",
			method:      "PUT",
			path:        "/rulesets/people/rules/x/active",
			contentType: "application/json",
			body:        `{}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unknown rule",
			method:      "PUT",
			path:        "/rulesets/people/rules/x/active",
			contentType: "application/json",
			body:        `{"active": true}`,
			wantStatus:  http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := doRequest(t, tt.method, base+tt.path, tt.contentType, strings.NewReader(tt.body))
			if status != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, status, data)
			}

			resp := decode[ErrorResponse](t, data)
			if resp.Error == "" {
				t.Error("Error response should carry a message")
			}
			if tt.wantIndex != nil && (resp.Index == nil || *resp.Index != *tt.wantIndex) {
				t.Errorf("Expected index %d, got %v", *tt.wantIndex, resp.Index)
			}
			if resp.Field != tt.wantField {
				t.Errorf("Expected field %q, got %q", tt.wantField, resp.Field)
			}
		})
	}

	// failed imports leave the rule set untouched
	status, data := doRequest(t, "GET", base+"/rulesets/people/rules", "", nil)
	if status != http.StatusOK || len(decode[RulesListResponse](t, data).Rules) != 0 {
		t.Errorf("Rule set should still be empty: %d %s", status, data)
	}
}

func TestValidate(t *testing.T) {
	ts := newTestServer(t)

	status, data := doRequest(t, "POST", ts.URL+"/api/v1/validate", "text/plain", strings.NewReader(peopleRules))
	if status != http.StatusOK {
		t.Fatalf("Validate returned %d: %s", status, data)
	}

	var resp struct {
		Valid bool `json:"valid"`
		Count int  `json:"count"`
		Rules []struct {
			Name     string `json:"name"`
			Priority int    `json:"priority"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Valid || resp.Count != 2 || resp.Rules[1].Name != "weather rule" {
		t.Errorf("Unexpected validate response: %+v", resp)
	}
}

func TestValidateChecksConditionsWhenEnabled(t *testing.T) {
	checker, err := rules.NewCELConditionChecker()
	if err != nil {
		t.Fatalf("NewCELConditionChecker() failed: %v", err)
	}
	ts := newTestServer(t, catalog.WithConditionChecker(checker))

	status, data := doRequest(t, "POST", ts.URL+"/api/v1/validate", "", strings.NewReader("condition: 'a >'\nactions: [x]\n"))
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("Unparseable condition should be rejected with 422, got %d: %s", status, data)
	}
	if resp := decode[ErrorResponse](t, data); resp.Field != "condition" {
		t.Errorf("Expected field condition, got %q", resp.Field)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	createRuleSet(t, ts.URL, "people")
	doRequest(t, "POST", ts.URL+"/api/v1/rulesets/people/rules", "", strings.NewReader(peopleRules))

	status, data := doRequest(t, "GET", ts.URL+"/metrics", "", nil)
	if status != http.StatusOK {
		t.Fatalf("Metrics returned %d", status)
	}
	if !strings.Contains(string(data), `ruledefs_rules_imported_total{rule_set="people"} 2`) {
		t.Errorf("Metrics should count imported rules, got:\n%s", data)
	}
}

func intPtr(i int) *int {
	return &i
}
