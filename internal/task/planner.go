package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// maxPlanSteps bounds how large a generated plan may grow.
const maxPlanSteps = 20

// PlanningError means the external planner produced nothing that parses
// into at least one valid step. It is surfaced to the caller, never
// silently retried with a guessed plan.
type PlanningError struct {
	msg string
}

func (e *PlanningError) Error() string {
	return "planning failed: " + e.msg
}

// Planner produces a raw structured plan for a task description. The
// reference implementation delegates to a chat model; tests substitute a
// canned planner.
type Planner interface {
	GeneratePlan(ctx context.Context, description, workingDirectory string) (string, error)
}

const plannerSystemPrompt = `You translate a task description into a JSON plan.
Respond with a JSON array only, no prose. Each element:
{"tool": "<tool name>", "description": "<what this step does>", "args": {<tool arguments>}}
Available tools: read_file, write_file, list_dir, search_files, move_file, delete_file, exec, fetch_page, web_search, download_file.
Keep the plan short and strictly sequential.`

// ModelPlanner generates plans with an eino chat model.
type ModelPlanner struct {
	model model.ChatModel
}

// NewModelPlanner wraps a chat model as a planner.
func NewModelPlanner(chatModel model.ChatModel) *ModelPlanner {
	return &ModelPlanner{model: chatModel}
}

// GeneratePlan asks the model for a structured plan.
func (p *ModelPlanner) GeneratePlan(ctx context.Context, description, workingDirectory string) (string, error) {
	if p.model == nil {
		return "", fmt.Errorf("no planner model configured")
	}

	user := fmt.Sprintf("Task: %s\nWorking directory: %s", description, workingDirectory)
	resp, err := p.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(plannerSystemPrompt),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", fmt.Errorf("planner model: %w", err)
	}
	return resp.Content, nil
}

type plannedStep struct {
	Tool        string         `json:"tool"`
	Description string         `json:"description"`
	Args        map[string]any `json:"args"`
}

// parseSteps validates raw planner output into executable steps. The output
// may be wrapped in a markdown code fence; anything that does not decode
// into at least one step with a tool name is a PlanningError.
func parseSteps(raw string) ([]Step, error) {
	cleaned := stripCodeFence(raw)
	if cleaned == "" {
		return nil, &PlanningError{msg: "planner returned no output"}
	}

	var planned []plannedStep
	if err := json.Unmarshal([]byte(cleaned), &planned); err != nil {
		return nil, &PlanningError{msg: "planner output is not a JSON step array"}
	}
	if len(planned) == 0 {
		return nil, &PlanningError{msg: "planner produced an empty plan"}
	}
	if len(planned) > maxPlanSteps {
		planned = planned[:maxPlanSteps]
	}

	steps := make([]Step, 0, len(planned))
	for _, ps := range planned {
		tool := strings.TrimSpace(ps.Tool)
		if tool == "" {
			continue
		}
		description := strings.TrimSpace(ps.Description)
		if description == "" {
			description = tool
		}
		args := ps.Args
		if args == nil {
			args = map[string]any{}
		}
		steps = append(steps, Step{
			ID:          uuid.NewString(),
			Description: description,
			Tool:        tool,
			Args:        args,
			Status:      StepPending,
		})
	}
	if len(steps) == 0 {
		return nil, &PlanningError{msg: "no step carried a tool name"}
	}
	return steps, nil
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
