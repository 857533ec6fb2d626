package catalog

import (
	"errors"
	"testing"

	"github.com/liamcoop/ruledefs/rules"
)

func TestBackendInterfaceExists(t *testing.T) {
	var _ Backend = (*InMemoryBackend)(nil)
	var _ Backend = (*PostgresBackend)(nil)
}

func TestInMemoryBackend(t *testing.T) {
	b := NewInMemoryBackend()

	if err := b.CreateRuleSet("weather"); err != nil {
		t.Fatalf("CreateRuleSet() failed: %v", err)
	}
	if err := b.CreateRuleSet("people"); err != nil {
		t.Fatalf("CreateRuleSet() failed: %v", err)
	}
	if err := b.CreateRuleSet("people"); !errors.Is(err, ErrRuleSetExists) {
		t.Errorf("Expected ErrRuleSetExists, got: %v", err)
	}

	names, _ := b.ListRuleSets()
	if len(names) != 2 || names[0] != "people" || names[1] != "weather" {
		t.Errorf("ListRuleSets() = %v, want [people weather]", names)
	}

	def, err := rules.NewRuleDefinition("r", "d", 1, "x", []string{"y"})
	if err != nil {
		t.Fatalf("NewRuleDefinition() failed: %v", err)
	}
	if err := b.Store("people").Add(&rules.Rule{ID: "1", Definition: def, Active: true}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if _, err := b.Store("people").Get("1"); err != nil {
		t.Errorf("Store() should return the same store for a set: %v", err)
	}
	if _, err := b.Store("weather").Get("1"); !errors.Is(err, rules.ErrRuleNotFound) {
		t.Errorf("Rule sets should not share rules, got: %v", err)
	}

	if err := b.DeleteRuleSet("people"); err != nil {
		t.Fatalf("DeleteRuleSet() failed: %v", err)
	}
	if err := b.DeleteRuleSet("people"); !errors.Is(err, ErrRuleSetNotFound) {
		t.Errorf("Expected ErrRuleSetNotFound, got: %v", err)
	}
}
