package task

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseSteps_PlainJSON(t *testing.T) {
	raw := `[
		{"tool": "read_file", "description": "read the config", "args": {"path": "/tmp/w/cfg.json"}},
		{"tool": "exec", "args": {"command": "git status"}}
	]`
	steps, err := parseSteps(raw)
	if err != nil {
		t.Fatalf("parseSteps error: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Tool != "read_file" || steps[0].Description != "read the config" {
		t.Fatalf("unexpected first step: %+v", steps[0])
	}
	if steps[1].Description != "exec" {
		t.Fatalf("expected tool name as fallback description, got %q", steps[1].Description)
	}
	if steps[0].ID == "" || steps[0].ID == steps[1].ID {
		t.Fatal("expected distinct non-empty step ids")
	}
	if steps[0].Status != StepPending {
		t.Fatalf("expected pending status, got %s", steps[0].Status)
	}
}

func TestParseSteps_CodeFence(t *testing.T) {
	raw := "```json\n[{\"tool\": \"list_dir\", \"args\": {\"path\": \"/tmp/w\"}}]\n```"
	steps, err := parseSteps(raw)
	if err != nil {
		t.Fatalf("parseSteps error: %v", err)
	}
	if len(steps) != 1 || steps[0].Tool != "list_dir" {
		t.Fatalf("unexpected steps: %+v", steps)
	}
}

func TestParseSteps_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"prose", "Sure! First I would read the file, then..."},
		{"empty", ""},
		{"empty array", "[]"},
		{"object not array", `{"tool": "read_file"}`},
		{"only nameless steps", `[{"description": "think about it"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseSteps(tc.raw)
			var planErr *PlanningError
			if !errors.As(err, &planErr) {
				t.Fatalf("expected PlanningError, got %v", err)
			}
		})
	}
}

func TestParseSteps_SkipsNamelessAndCaps(t *testing.T) {
	var parts []string
	parts = append(parts, `{"description": "no tool here"}`)
	for i := 0; i < maxPlanSteps+5; i++ {
		parts = append(parts, fmt.Sprintf(`{"tool": "list_dir", "args": {"path": "/tmp/w/%d"}}`, i))
	}
	raw := "[" + strings.Join(parts, ",") + "]"

	steps, err := parseSteps(raw)
	if err != nil {
		t.Fatalf("parseSteps error: %v", err)
	}
	if len(steps) > maxPlanSteps {
		t.Fatalf("expected at most %d steps, got %d", maxPlanSteps, len(steps))
	}
	for _, step := range steps {
		if step.Tool == "" {
			t.Fatal("nameless step survived parsing")
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"[1]", "[1]"},
		{"```json\n[1]\n```", "[1]"},
		{"```\n[1]\n```", "[1]"},
		{"  ```json\n[1]\n```  ", "[1]"},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
