package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/config"
	"github.com/spf13/cobra"
)

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries",
		RunE:  runAudit,
	}
	cmd.Flags().Int("n", 20, "Number of entries to show")
	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	limit, _ := cmd.Flags().GetInt("n")
	if limit <= 0 {
		limit = 20
	}

	entries, err := tailAuditEntries(audit.NewLog(workspacePath).Path(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return nil
	}

	for _, entry := range entries {
		line := fmt.Sprintf("%s  %-8s %s", entry.Time.Format("2006-01-02 15:04:05"), entry.Outcome, entry.Tool)
		if entry.Risk != "" {
			line += " risk=" + entry.Risk
		}
		if entry.Reason != "" {
			line += "  " + entry.Reason
		}
		fmt.Println(line)
	}
	return nil
}

// tailAuditEntries reads the whole JSONL file and keeps the last n valid
// entries. Corrupt lines are skipped, not fatal.
func tailAuditEntries(path string, n int) ([]audit.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var entries []audit.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry audit.Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
