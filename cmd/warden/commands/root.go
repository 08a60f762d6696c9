package commands

import (
	"github.com/MEKXH/warden/internal/config"
	"github.com/spf13/cobra"
)

var logLevelOverride string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - Trust boundary for AI agents",
		Long:  `Warden governs what an AI agent may read, write, execute and fetch, with human approval for anything risky.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewInitCmd(),
		NewRunCmd(),
		NewPolicyCmd(),
		NewApprovalCmd(),
		NewTaskCmd(),
		NewAuditCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return cmd
}
