package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestRunText(t *testing.T) {
	path := filepath.Join("..", "..", "rules", "testdata", "rules.yml")

	var stdout, stderr bytes.Buffer
	if code := run([]string{path}, &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"2 rule(s)", "adult rule", "when: person.age > 18", "weather rule"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output should contain %q, got:\n%s", want, out)
		}
	}
}

func TestRunJSON(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", `[{"condition": "a > 1", "actions": ["x();"]}]`)
	bad := writeFile(t, dir, "bad.yml", "name: broken\nactions: [x]\n")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-json", good, bad}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}

	var reports []struct {
		File  string `json:"file"`
		Rules []struct {
			Name     string `json:"name"`
			Priority int    `json:"priority"`
		} `json:"rules"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &reports); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, stdout.String())
	}
	if len(reports) != 2 {
		t.Fatalf("Expected 2 reports, got %d", len(reports))
	}
	if reports[0].Error != "" || len(reports[0].Rules) != 1 || reports[0].Rules[0].Name != "rule" {
		t.Errorf("Unexpected report for good file: %+v", reports[0])
	}
	if !strings.Contains(reports[1].Error, "condition") {
		t.Errorf("Report for bad file should name the missing condition, got %q", reports[1].Error)
	}
}

func TestRunFlags(t *testing.T) {
	dir := t.TempDir()
	extra := writeFile(t, dir, "extra.yml", "name: a\ncondition: 'x >'\nactions: [y]\nowner: ops\n")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "lenient", args: []string{extra}, want: 0},
		{name: "strict", args: []string{"-strict", extra}, want: 1},
		{name: "check conditions", args: []string{"-check-conditions", extra}, want: 1},
		{name: "missing file", args: []string{filepath.Join(dir, "missing.yml")}, want: 1},
		{name: "no files", args: nil, want: 2},
		{name: "bad format", args: []string{"-format", "toml", extra}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != tt.want {
				t.Errorf("run(%v) = %d, want %d (stderr: %s)", tt.args, code, tt.want, stderr.String())
			}
		})
	}
}
