package commands

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MEKXH/warden/internal/task"
	"github.com/spf13/cobra"
)

func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Plan and execute governed tasks",
	}

	cmd.AddCommand(
		newTaskRunCmd(),
		newTaskStatusCmd(),
		newTaskCancelCmd(),
	)

	return cmd
}

func newTaskRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <description>",
		Short: "Plan a task and start executing it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTaskRun,
	}
	cmd.Flags().String("dir", "", "Working directory for the task")
	return cmd
}

func newTaskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tracked task",
		RunE:  runTaskStatus,
	}
}

func newTaskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active task",
		RunE:  runTaskCancel,
	}
}

func runTaskRun(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	dir, _ := cmd.Flags().GetString("dir")
	body := map[string]any{
		"description":       strings.Join(args, " "),
		"working_directory": strings.TrimSpace(dir),
	}

	var planned struct {
		Task task.Plan `json:"task"`
	}
	if err := client.do(http.MethodPost, "/tasks", body, &planned); err != nil {
		return err
	}

	fmt.Printf("Task %s planned (%d steps):\n", planned.Task.ID, len(planned.Task.Steps))
	printPlan(&planned.Task)

	if err := client.do(http.MethodPost, "/tasks/execute", map[string]any{"task_id": planned.Task.ID}, nil); err != nil {
		return err
	}
	fmt.Println("\nExecution started. The plan needs approval before any step runs.")
	fmt.Println("Check progress with 'warden task status'.")
	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	var out struct {
		Task task.Plan `json:"task"`
	}
	if err := client.do(http.MethodGet, "/tasks", nil, &out); err != nil {
		return err
	}

	fmt.Printf("Task %s: %s\n", out.Task.ID, out.Task.Status)
	fmt.Printf("  %s\n", out.Task.Description)
	if out.Task.WorkingDirectory != "" {
		fmt.Printf("  Dir: %s\n", out.Task.WorkingDirectory)
	}
	if out.Task.Error != "" {
		fmt.Printf("  Error: %s\n", out.Task.Error)
	}
	printPlan(&out.Task)
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient()
	if err != nil {
		return err
	}

	var out struct {
		Task task.Plan `json:"task"`
	}
	if err := client.do(http.MethodPost, "/tasks/cancel", nil, &out); err != nil {
		return err
	}
	fmt.Printf("Task %s cancelled.\n", out.Task.ID)
	return nil
}

func printPlan(plan *task.Plan) {
	for i, step := range plan.Steps {
		line := fmt.Sprintf("  %d. [%s] %s (%s)", i+1, step.Status, step.Description, step.Tool)
		if step.Error != "" {
			line += " - " + step.Error
		}
		fmt.Println(line)
	}
}
