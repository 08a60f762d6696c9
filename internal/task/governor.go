package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/tools"
	"github.com/google/uuid"
)

// criticalTools are tool kinds whose step failure invalidates the rest of
// the plan. Failures of any other tool are recorded and the task continues.
var criticalTools = map[string]struct{}{
	"write_file": {},
	"exec":       {},
}

// deniedPhrases mark a textual tool result as a refused step even when the
// tool itself returned no error.
var deniedPhrases = []string{
	"not permitted",
	"denied",
	"rejected",
	"blocked",
	"approval required",
	"approval expired",
}

// Executor resolves and runs a tool by name. *tools.Registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, name, argsJSON string) (string, error)
}

// ProgressSink receives one update per step transition.
type ProgressSink interface {
	Progress(ctx context.Context, progress Progress)
}

// PlanStore persists plan snapshots across restarts.
type PlanStore interface {
	SavePlan(plan *Plan) error
}

// Governor runs one human-approved plan at a time. The whole plan is
// approved once through the gate; individual steps are then governed by the
// engine's task-mode evaluation, bounded to the plan's working directory.
type Governor struct {
	engine     *policy.Engine
	gate       *approval.Gate
	log        *audit.Log
	planner    Planner
	executor   Executor
	progress   ProgressSink
	store      PlanStore
	defaultDir string
	now        func() time.Time

	mu        sync.Mutex
	current   *Plan
	cancelled bool
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithProgressSink attaches a progress channel.
func WithProgressSink(sink ProgressSink) GovernorOption {
	return func(g *Governor) { g.progress = sink }
}

// WithPlanStore attaches a persistent store for plan snapshots.
func WithPlanStore(store PlanStore) GovernorOption {
	return func(g *Governor) { g.store = store }
}

// WithDefaultWorkingDirectory sets the directory used when a plan does not
// name one.
func WithDefaultWorkingDirectory(dir string) GovernorOption {
	return func(g *Governor) { g.defaultDir = dir }
}

// NewGovernor creates a task governor.
func NewGovernor(engine *policy.Engine, gate *approval.Gate, log *audit.Log, planner Planner, executor Executor, opts ...GovernorOption) *Governor {
	g := &Governor{
		engine:   engine,
		gate:     gate,
		log:      log,
		planner:  planner,
		executor: executor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Plan asks the external planner for steps and tracks the resulting plan as
// the single pending task. A parse failure surfaces as PlanningError.
func (g *Governor) Plan(ctx context.Context, description, workingDirectory string) (*Plan, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("task description is required")
	}
	dir := strings.TrimSpace(workingDirectory)
	if dir == "" {
		dir = g.defaultDir
	}
	if dir == "" {
		return nil, fmt.Errorf("no working directory for task")
	}

	g.mu.Lock()
	if g.current != nil && !g.current.Status.Terminal() {
		active := g.current.ID
		g.mu.Unlock()
		return nil, fmt.Errorf("task %s is still active", active)
	}
	g.mu.Unlock()

	raw, err := g.planner.GeneratePlan(ctx, description, dir)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	steps, err := parseSteps(raw)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:               uuid.NewString(),
		Description:      description,
		WorkingDirectory: dir,
		Steps:            steps,
		Status:           PlanAwaitingApproval,
		CreatedAt:        g.now().UTC(),
	}

	g.mu.Lock()
	g.current = plan
	g.cancelled = false
	g.mu.Unlock()

	g.persist(plan)
	slog.Info("task planned", "task_id", plan.ID, "steps", len(steps), "dir", dir)
	return g.snapshotLocked(plan.ID)
}

// Execute runs the tracked plan. It first obtains one whole-plan approval
// through the gate, enters task mode scoped to the plan's working
// directory, and executes steps strictly in order.
func (g *Governor) Execute(ctx context.Context, taskID string) (*Plan, error) {
	g.mu.Lock()
	if g.current == nil || g.current.ID != taskID {
		g.mu.Unlock()
		return nil, fmt.Errorf("unknown task: %s", taskID)
	}
	if g.current.Status != PlanAwaitingApproval {
		status := g.current.Status
		g.mu.Unlock()
		return nil, fmt.Errorf("task %s is %s, not awaiting approval", taskID, status)
	}
	// Claim the plan before the blocking approval round-trip so a
	// concurrent Execute on the same plan is rejected above instead of
	// soliciting a second approval.
	g.current.Status = PlanApproving
	plan := g.current
	g.mu.Unlock()
	g.persist(plan)

	if !g.approvePlan(ctx, plan) {
		g.skipRemaining(plan, 0)
		g.finish(plan, PlanCancelled, "plan was not approved")
		return g.snapshotLocked(plan.ID)
	}

	if err := g.engine.EnterTaskMode(plan.ID, plan.WorkingDirectory); err != nil {
		g.finish(plan, PlanFailed, err.Error())
		return nil, err
	}
	defer g.engine.ExitTaskMode()

	g.setPlanStatus(plan, PlanRunning)

	total := len(plan.Steps)
	for i := 0; i < total; i++ {
		if g.isCancelled() {
			g.skipRemaining(plan, i)
			g.finish(plan, PlanCancelled, "cancelled by operator")
			return g.snapshotLocked(plan.ID)
		}

		g.setStep(plan, i, StepRunning, "", "")
		g.emit(ctx, plan, i, StepRunning)

		result, err := g.runStep(ctx, plan, i)
		failure := ""
		if err != nil {
			failure = err.Error()
		} else if phrase := matchDeniedPhrase(result); phrase != "" {
			failure = result
		}

		if failure != "" {
			g.setStep(plan, i, StepFailed, result, failure)
			g.emit(ctx, plan, i, StepFailed)
			slog.Warn("task step failed", "task_id", plan.ID, "step", i, "tool", plan.Steps[i].Tool, "error", failure)

			if _, critical := criticalTools[plan.Steps[i].Tool]; critical {
				g.skipRemaining(plan, i+1)
				g.finish(plan, PlanFailed, fmt.Sprintf("critical step %d failed: %s", i+1, failure))
				return g.snapshotLocked(plan.ID)
			}
			continue
		}

		g.setStep(plan, i, StepCompleted, result, "")
		g.emit(ctx, plan, i, StepCompleted)
	}

	g.finish(plan, PlanCompleted, "")
	return g.snapshotLocked(plan.ID)
}

// Cancel marks the tracked plan cancelled. A step already mid-execution
// finishes; only not-yet-started steps are skipped. Completed side effects
// are not rolled back.
func (g *Governor) Cancel() (*Plan, error) {
	g.mu.Lock()

	if g.current == nil || g.current.Status.Terminal() {
		g.mu.Unlock()
		return nil, fmt.Errorf("no active task to cancel")
	}
	g.cancelled = true

	// A running plan notices the flag before its next step; anything not
	// yet running is cancelled immediately.
	if g.current.Status != PlanRunning {
		for i := range g.current.Steps {
			if !g.current.Steps[i].Status.Terminal() {
				g.current.Steps[i].Status = StepSkipped
			}
		}
		g.current.Status = PlanCancelled
		g.current.Error = "cancelled by operator"
		g.current.CompletedAt = g.now().UTC()
	}

	plan := g.current
	snapshot := copyPlan(plan)
	g.mu.Unlock()

	g.persist(plan)
	return snapshot, nil
}

// Current returns a snapshot of the tracked plan, if any.
func (g *Governor) Current() (*Plan, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil, false
	}
	return copyPlan(g.current), true
}

func (g *Governor) approvePlan(ctx context.Context, plan *Plan) bool {
	if g.gate == nil {
		return true
	}

	args, _ := json.Marshal(map[string]any{
		"steps":             len(plan.Steps),
		"working_directory": plan.WorkingDirectory,
	})
	description := fmt.Sprintf("Run task (%d steps in %s): %s", len(plan.Steps), plan.WorkingDirectory, plan.Description)
	approved := g.gate.Request(ctx, "task_plan", string(args), policy.RiskHigh, description)

	outcome := audit.OutcomeApproved
	if !approved {
		outcome = audit.OutcomeRejected
	}
	if g.log != nil {
		g.log.Record(audit.Entry{
			Tool:    "task_plan",
			Args:    string(args),
			Risk:    string(policy.RiskHigh),
			Outcome: outcome,
			Reason:  plan.Description,
		})
	}
	return approved
}

func (g *Governor) runStep(ctx context.Context, plan *Plan, index int) (string, error) {
	step := plan.Steps[index]
	args := step.Args

	// Command steps inherit the task's working directory unless they set
	// their own.
	if step.Tool == "exec" {
		if _, ok := args["dir"]; !ok {
			args = cloneArgs(args)
			args["dir"] = plan.WorkingDirectory
		}
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode step args: %w", err)
	}

	stepCtx := tools.WithInvocationContext(ctx, tools.InvocationContext{
		TaskID: plan.ID,
	})
	return g.executor.Execute(stepCtx, step.Tool, string(argsJSON))
}

func (g *Governor) emit(ctx context.Context, plan *Plan, index int, status StepStatus) {
	if g.progress == nil {
		return
	}
	g.progress.Progress(ctx, Progress{
		TaskID:          plan.ID,
		StepIndex:       index,
		TotalSteps:      len(plan.Steps),
		StepDescription: plan.Steps[index].Description,
		Status:          status,
	})
}

func (g *Governor) isCancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}

func (g *Governor) setPlanStatus(plan *Plan, status PlanStatus) {
	g.mu.Lock()
	plan.Status = status
	g.mu.Unlock()
	g.persist(plan)
}

func (g *Governor) setStep(plan *Plan, index int, status StepStatus, result, stepErr string) {
	g.mu.Lock()
	plan.Steps[index].Status = status
	plan.Steps[index].Result = result
	plan.Steps[index].Error = stepErr
	g.mu.Unlock()
	g.persist(plan)
}

func (g *Governor) skipRemaining(plan *Plan, from int) {
	g.mu.Lock()
	for i := from; i < len(plan.Steps); i++ {
		if !plan.Steps[i].Status.Terminal() {
			plan.Steps[i].Status = StepSkipped
		}
	}
	g.mu.Unlock()
}

func (g *Governor) finish(plan *Plan, status PlanStatus, reason string) {
	g.mu.Lock()
	plan.Status = status
	plan.Error = reason
	plan.CompletedAt = g.now().UTC()
	g.mu.Unlock()
	g.persist(plan)
	slog.Info("task finished", "task_id", plan.ID, "status", status, "error", reason)
}

// persist saves a snapshot of the plan. A storage failure never interrupts
// execution.
func (g *Governor) persist(plan *Plan) {
	if g.store == nil {
		return
	}
	g.mu.Lock()
	snapshot := copyPlan(plan)
	g.mu.Unlock()
	if err := g.store.SavePlan(snapshot); err != nil {
		slog.Warn("failed to persist task state", "task_id", snapshot.ID, "error", err)
	}
}

func (g *Governor) snapshotLocked(taskID string) (*Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil || g.current.ID != taskID {
		return nil, fmt.Errorf("unknown task: %s", taskID)
	}
	return copyPlan(g.current), nil
}

func copyPlan(plan *Plan) *Plan {
	copied := *plan
	copied.Steps = append([]Step(nil), plan.Steps...)
	return &copied
}

func cloneArgs(args map[string]any) map[string]any {
	cloned := make(map[string]any, len(args)+1)
	for k, v := range args {
		cloned[k] = v
	}
	return cloned
}

func matchDeniedPhrase(result string) string {
	lowered := strings.ToLower(result)
	for _, phrase := range deniedPhrases {
		if strings.Contains(lowered, phrase) {
			return phrase
		}
	}
	return ""
}
