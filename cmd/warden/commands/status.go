package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/state"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Warden configuration status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	fmt.Println("=== Warden Status ===")
	fmt.Println()

	fmt.Printf("Config: %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'warden init')")
	}

	fmt.Printf("\nWorkspace: %s\n", workspacePath)
	if _, err := os.Stat(workspacePath); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found")
	}
	workspaceMode := strings.TrimSpace(cfg.Agent.WorkspaceMode)
	if workspaceMode == "" {
		workspaceMode = "default"
	}
	fmt.Printf("  Mode: %s\n", workspaceMode)

	fmt.Printf("\nPlanner model: %s\n", cfg.Agent.Model)

	fmt.Println("\nProviders:")
	providers := map[string]string{
		"OpenRouter": cfg.Providers.OpenRouter.APIKey,
		"OpenAI":     cfg.Providers.OpenAI.APIKey,
		"DeepSeek":   cfg.Providers.DeepSeek.APIKey,
	}
	for name, key := range providers {
		status := "Not configured"
		if key != "" {
			status = "Configured"
		}
		fmt.Printf("  %s: %s\n", name, status)
	}

	fmt.Println("\nPolicy:")
	allowed := cfg.PolicyEngineConfig(workspacePath).AllowedDirectories
	fmt.Printf("  Allowed directories: %d\n", len(allowed))
	fmt.Printf("  Shell: %v\n", cfg.Policy.ShellEnabled)
	fmt.Printf("  Browser: %v\n", cfg.Policy.BrowserEnabled)
	fmt.Printf("  Approval for writes: %v\n", cfg.Policy.RequireApprovalForWrites)
	fmt.Printf("  Risk overrides: %d\n", len(cfg.Policy.RiskOverrides))

	fmt.Println("\nTools:")
	fmt.Println("  read_file: ready")
	fmt.Println("  write_file: ready")
	fmt.Println("  list_dir: ready")
	fmt.Println("  search_files: ready")
	fmt.Println("  move_file: ready")
	fmt.Println("  delete_file: ready")
	execStatus := "disabled by policy"
	if cfg.Policy.ShellEnabled {
		execStatus = fmt.Sprintf("ready (timeout=%ds)", cfg.Tools.Exec.Timeout)
	}
	fmt.Printf("  exec: %s\n", execStatus)
	webStatus := "disabled by policy"
	if cfg.Policy.BrowserEnabled {
		webStatus = "ready (DuckDuckGo fallback)"
		if strings.TrimSpace(cfg.Tools.Web.Search.APIKey) != "" {
			webStatus = "ready (Brave + DuckDuckGo fallback)"
		}
	}
	fmt.Printf("  web_search: %s\n", webStatus)
	fmt.Printf("  fetch_page: %s\n", boolStatus(cfg.Policy.BrowserEnabled))
	fmt.Printf("  download_file: %s\n", boolStatus(cfg.Policy.BrowserEnabled))

	fmt.Println("\nApproval:")
	fmt.Printf("  Timeout: %ds\n", cfg.Approval.TimeoutSeconds)
	if len(cfg.Approval.AuthorizedUsers) > 0 {
		fmt.Printf("  Authorized users: %s\n", strings.Join(cfg.Approval.AuthorizedUsers, ", "))
	} else {
		fmt.Println("  Authorized users: anyone")
	}

	fmt.Println("\nChannels:")
	tgStatus := "disabled"
	if cfg.Channels.Telegram.Enabled {
		tgStatus = "enabled"
		if strings.TrimSpace(cfg.Channels.Telegram.Token) == "" {
			tgStatus = "enabled (missing token)"
		}
	}
	fmt.Printf("  Telegram: %s\n", tgStatus)

	if plan, ok := state.NewManager(workspacePath).LoadPlan(); ok {
		fmt.Println("\nLast task:")
		fmt.Printf("  %s: %s (%d steps)\n", plan.ID, plan.Status, len(plan.Steps))
	}

	if snap, err := metrics.ReadRuntimeSnapshot(workspacePath); err == nil && snap.HasData() {
		fmt.Println("\nRuntime metrics:")
		fmt.Printf("  Decisions: %d (%.0f%% denied)\n", snap.Decision.Total(), snap.Decision.DeniedRatio()*100)
		fmt.Printf("  Tool runs: %d (%.0f%% errors, p95 ~%dms)\n",
			snap.Tool.Total, snap.Tool.ErrorRatio()*100, snap.Tool.P95ProxyLatencyMs)
	}

	fmt.Println("\nGateway:")
	fmt.Printf("  Address: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token != "" {
		fmt.Println("  Auth:    token configured")
	} else {
		fmt.Println("  Auth:    no token (open)")
	}

	return nil
}

func boolStatus(enabled bool) string {
	if enabled {
		return "ready"
	}
	return "disabled by policy"
}
