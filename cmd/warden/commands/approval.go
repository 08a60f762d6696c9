package commands

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Manage pending approval requests",
	}

	cmd.AddCommand(
		newApprovalListCmd(),
		newApprovalApproveCmd(),
		newApprovalRejectCmd(),
	)

	return cmd
}

func newApprovalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending approval requests",
		RunE:  runApprovalList,
	}
}

func newApprovalApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalDecision(cmd, args[0], true)
		},
	}
	cmd.Flags().String("by", "", "Decision maker")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newApprovalRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalDecision(cmd, args[0], false)
		},
	}
	cmd.Flags().String("by", "", "Decision maker")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func runApprovalList(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	var out struct {
		Requests []struct {
			ID          string    `json:"id"`
			Tool        string    `json:"tool"`
			Risk        string    `json:"risk"`
			Description string    `json:"description"`
			CreatedAt   time.Time `json:"created_at"`
		} `json:"requests"`
	}
	if err := client.do(http.MethodGet, "/approvals", nil, &out); err != nil {
		return err
	}

	if len(out.Requests) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}
	for _, req := range out.Requests {
		age := time.Since(req.CreatedAt).Round(time.Second)
		fmt.Printf("%s  [%s] %s (%s)\n    %s\n", req.ID, req.Risk, req.Tool, age, req.Description)
	}
	return nil
}

func runApprovalDecision(cmd *cobra.Command, id string, approve bool) error {
	by, _ := cmd.Flags().GetString("by")
	if strings.TrimSpace(by) == "" {
		return fmt.Errorf("--by is required")
	}

	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	body := map[string]any{
		"id":      strings.TrimSpace(id),
		"approve": approve,
		"by":      strings.TrimSpace(by),
	}
	if err := client.do(http.MethodPost, "/approvals/resolve", body, nil); err != nil {
		return err
	}

	if approve {
		fmt.Printf("Approval %s approved.\n", id)
	} else {
		fmt.Printf("Approval %s rejected.\n", id)
	}
	return nil
}
