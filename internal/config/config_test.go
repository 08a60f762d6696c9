package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MEKXH/warden/internal/policy"
)

func TestLoadFrom_CreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}
	if !cfg.Policy.RequireApprovalForWrites {
		t.Fatal("expected write approval on by default")
	}
	if cfg.Approval.TimeoutSeconds != 300 {
		t.Fatalf("expected default timeout 300, got %d", cfg.Approval.TimeoutSeconds)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config written to disk: %v", err)
	}
}

func TestLoadFrom_ReadsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := map[string]any{
		"policy": map[string]any{
			"allowed_directories": []string{"/srv/data"},
			"shell_enabled":       false,
			"risk_overrides":      map[string]string{"read_file": "safe"},
		},
		"approval": map[string]any{
			"timeout_seconds":  30,
			"authorized_users": []string{"100"},
		},
		"log": map[string]any{"level": "DEBUG"},
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}
	if cfg.Policy.ShellEnabled {
		t.Fatal("expected shell disabled")
	}
	if cfg.Approval.TimeoutSeconds != 30 {
		t.Fatalf("expected timeout 30, got %d", cfg.Approval.TimeoutSeconds)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected normalized log level, got %q", cfg.Log.Level)
	}
	if cfg.Policy.RiskOverrides["read_file"] != "safe" {
		t.Fatalf("expected risk override kept, got %v", cfg.Policy.RiskOverrides)
	}
}

func TestLoadFrom_RejectsBadValues(t *testing.T) {
	cases := []map[string]any{
		{"approval": map[string]any{"timeout_seconds": -1}},
		{"log": map[string]any{"level": "chatty"}},
		{"policy": map[string]any{"risk_overrides": map[string]string{"exec": "extreme"}}},
		{"agent": map[string]any{"workspace_mode": "floating"}},
	}
	for i, raw := range cases {
		path := filepath.Join(t.TempDir(), "config.json")
		data, err := json.Marshal(raw)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFrom(path); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestPolicyEngineConfig_AddsWorkspace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.AllowedDirectories = []string{"/srv/data"}
	cfg.Policy.RiskOverrides = map[string]string{"read_file": "safe", "bogus": "nope"}

	pc := cfg.PolicyEngineConfig("/home/user/work")
	if len(pc.AllowedDirectories) != 2 {
		t.Fatalf("expected workspace appended, got %v", pc.AllowedDirectories)
	}
	if pc.RiskOverrides["read_file"] != policy.RiskSafe {
		t.Fatalf("expected parsed override, got %v", pc.RiskOverrides)
	}
	if _, ok := pc.RiskOverrides["bogus"]; ok {
		t.Fatal("unparseable override should be dropped")
	}

	pc = cfg.PolicyEngineConfig("/srv/data")
	if len(pc.AllowedDirectories) != 1 {
		t.Fatalf("workspace already listed should not duplicate: %v", pc.AllowedDirectories)
	}
}
