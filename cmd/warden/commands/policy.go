package commands

import (
	"fmt"
	"strings"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/spf13/cobra"
)

func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and tune the trust boundary",
	}

	cmd.AddCommand(
		newPolicyCheckCmd(),
		newPolicyOverrideCmd(),
		newPolicyShowCmd(),
	)

	return cmd
}

func newPolicyCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <tool>",
		Short: "Evaluate a hypothetical tool call against the policy",
		Args:  cobra.ExactArgs(1),
		RunE:  runPolicyCheck,
	}
	cmd.Flags().String("path", "", "Path argument")
	cmd.Flags().String("destination", "", "Destination path for move/download")
	cmd.Flags().String("command", "", "Shell command for exec")
	cmd.Flags().String("dir", "", "Working directory for exec")
	cmd.Flags().String("url", "", "URL for fetch/download")
	return cmd
}

func newPolicyOverrideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "override <tool> <level>",
		Short: "Raise the risk floor for a tool (safe|low|medium|high|blocked)",
		Args:  cobra.ExactArgs(2),
		RunE:  runPolicyOverride,
	}
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective policy settings",
		RunE:  runPolicyShow,
	}
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	engine, err := loadPolicyEngine()
	if err != nil {
		return err
	}

	op, ok := policy.ParseOperation(args[0])
	if !ok {
		return fmt.Errorf("unknown tool: %s", args[0])
	}

	path, _ := cmd.Flags().GetString("path")
	destination, _ := cmd.Flags().GetString("destination")
	command, _ := cmd.Flags().GetString("command")
	dir, _ := cmd.Flags().GetString("dir")
	url, _ := cmd.Flags().GetString("url")

	decision := engine.Evaluate(op, policy.Params{
		Path:        path,
		Destination: destination,
		Command:     command,
		Dir:         dir,
		URL:         url,
	})

	verdict := "DENY"
	if decision.Allowed {
		verdict = "ALLOW"
		if decision.RequiresApproval {
			verdict = "ALLOW (approval required)"
		}
	}
	fmt.Printf("%s  risk=%s\n", verdict, decision.Risk)
	if decision.Reason != "" {
		fmt.Printf("  %s\n", decision.Reason)
	}
	return nil
}

func runPolicyOverride(cmd *cobra.Command, args []string) error {
	tool := strings.ToLower(strings.TrimSpace(args[0]))
	if _, ok := policy.ParseOperation(tool); !ok {
		return fmt.Errorf("unknown tool: %s", args[0])
	}
	level, ok := policy.ParseRiskLevel(args[1])
	if !ok {
		return fmt.Errorf("invalid risk level: %s", args[1])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Policy.RiskOverrides == nil {
		cfg.Policy.RiskOverrides = make(map[string]string)
	}
	cfg.Policy.RiskOverrides[tool] = string(level)
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Risk override saved: %s -> %s\n", tool, level)
	fmt.Println("Restart 'warden run' to apply it to a running server.")
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}
	engineCfg := cfg.PolicyEngineConfig(workspacePath)

	fmt.Println("Allowed directories:")
	for _, dir := range engineCfg.AllowedDirectories {
		fmt.Printf("  %s\n", dir)
	}
	fmt.Printf("Shell enabled: %v\n", cfg.Policy.ShellEnabled)
	fmt.Printf("Browser enabled: %v\n", cfg.Policy.BrowserEnabled)
	fmt.Printf("Approval for writes: %v\n", cfg.Policy.RequireApprovalForWrites)
	if len(cfg.Policy.BlockedCommands) > 0 {
		fmt.Printf("Blocked commands: %s\n", strings.Join(cfg.Policy.BlockedCommands, ", "))
	}
	if len(cfg.Policy.SafeCommands) > 0 {
		fmt.Printf("Safe commands: %s\n", strings.Join(cfg.Policy.SafeCommands, ", "))
	}
	if len(cfg.Policy.RiskOverrides) > 0 {
		fmt.Println("Risk overrides:")
		for tool, level := range cfg.Policy.RiskOverrides {
			fmt.Printf("  %s: %s\n", tool, level)
		}
	}
	return nil
}

func loadPolicyEngine() (*policy.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}
	return policy.NewEngine(cfg.PolicyEngineConfig(workspacePath)), nil
}
