package commands

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/warden/internal/config"
)

func setupConfig(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit error: %v", err)
	}
	return tmpDir
}

func TestPolicyCheck_AllowsWorkspaceRead(t *testing.T) {
	setupConfig(t)
	workspace := config.DefaultConfig().WorkspacePath()

	cmd := newPolicyCheckCmd()
	cmd.SetArgs([]string{"read_file", "--path", filepath.Join(workspace, "notes.txt")})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("policy check error: %v", err)
		}
	})
	if !strings.Contains(out, "ALLOW") {
		t.Fatalf("expected ALLOW verdict, got: %s", out)
	}
}

func TestPolicyCheck_DeniesOutsideBoundary(t *testing.T) {
	setupConfig(t)

	cmd := newPolicyCheckCmd()
	cmd.SetArgs([]string{"read_file", "--path", "/etc/passwd"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("policy check error: %v", err)
		}
	})
	if !strings.Contains(out, "DENY") {
		t.Fatalf("expected DENY verdict, got: %s", out)
	}
}

func TestPolicyCheck_UnknownTool(t *testing.T) {
	setupConfig(t)

	if err := runPolicyCheck(newPolicyCheckCmd(), []string{"summon_demon"}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestPolicyOverride_PersistsToConfig(t *testing.T) {
	setupConfig(t)

	if err := runPolicyOverride(nil, []string{"exec", "high"}); err != nil {
		t.Fatalf("runPolicyOverride error: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load error: %v", err)
	}
	if got := cfg.Policy.RiskOverrides["exec"]; got != "high" {
		t.Fatalf("expected exec override high, got %q", got)
	}
}

func TestPolicyOverride_RejectsBadLevel(t *testing.T) {
	setupConfig(t)

	if err := runPolicyOverride(nil, []string{"exec", "catastrophic"}); err == nil {
		t.Fatal("expected error for invalid risk level")
	}
	if err := runPolicyOverride(nil, []string{"summon_demon", "high"}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}
