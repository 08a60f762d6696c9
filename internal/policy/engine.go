package policy

import (
	"fmt"
	"strings"
	"sync"
)

// Engine evaluates operations against the loaded policy. Evaluation is
// deterministic and side-effect free apart from filesystem path resolution.
// Risk overrides and the task scope are the only mutable state and are
// guarded for concurrent callers.
type Engine struct {
	paths                    *Resolver
	commands                 *CommandChecker
	shellEnabled             bool
	browserEnabled           bool
	requireApprovalForWrites bool

	mu        sync.RWMutex
	overrides map[Operation]RiskLevel
	scope     *TaskScope
}

// NewEngine builds an engine from startup configuration.
func NewEngine(cfg Config) *Engine {
	overrides := make(map[Operation]RiskLevel, len(cfg.RiskOverrides))
	for name, level := range cfg.RiskOverrides {
		op, ok := ParseOperation(name)
		if !ok {
			continue
		}
		if _, valid := ParseRiskLevel(string(level)); !valid {
			continue
		}
		overrides[op] = level
	}

	return &Engine{
		paths:                    NewResolver(cfg.AllowedDirectories),
		commands:                 NewCommandChecker(cfg.BlockedCommands, cfg.SafeCommands),
		shellEnabled:             cfg.ShellEnabled,
		browserEnabled:           cfg.BrowserEnabled,
		requireApprovalForWrites: cfg.RequireApprovalForWrites,
		overrides:                overrides,
	}
}

// Resolver exposes the engine's path resolver.
func (e *Engine) Resolver() *Resolver {
	return e.paths
}

// Evaluate classifies one operation. Hard refusals (unknown operations,
// containment and deny-list violations) are final; otherwise a configured
// risk override replaces the built-in classification, except that delete and
// download never drop below high.
func (e *Engine) Evaluate(op Operation, params Params) Decision {
	decision := e.classify(op, params)
	if !decision.Allowed {
		return decision
	}
	return e.applyOverride(op, decision)
}

// EvaluateForTask evaluates like Evaluate, then relaxes the approval
// requirement for medium-risk operations whose target falls inside the
// active task scope's working directory. High-risk and blocked decisions
// are never relaxed. This is the only point where trust is elevated.
func (e *Engine) EvaluateForTask(op Operation, params Params) Decision {
	decision := e.Evaluate(op, params)

	e.mu.RLock()
	scope := e.scope
	e.mu.RUnlock()

	if scope == nil {
		return decision
	}
	if !decision.Allowed || !decision.RequiresApproval || decision.Risk != RiskMedium {
		return decision
	}

	target := params.Path
	if op == OpExec {
		target = params.Dir
		if target == "" {
			target = scope.WorkingDirectory
		}
	}
	if target == "" || !Within(target, scope.WorkingDirectory) {
		return decision
	}

	decision.RequiresApproval = false
	decision.Reason = decision.Reason + " (auto-approved within task scope)"
	return decision
}

// EnterTaskMode activates a task scope. Only one scope may be active.
func (e *Engine) EnterTaskMode(taskID, workingDirectory string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task id is required")
	}
	resolved, err := e.paths.Check(workingDirectory)
	if err != nil {
		return fmt.Errorf("task working directory rejected: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scope != nil {
		return fmt.Errorf("task mode already active for task %s", e.scope.TaskID)
	}
	e.scope = &TaskScope{TaskID: taskID, WorkingDirectory: resolved}
	return nil
}

// ExitTaskMode deactivates the scope. Exiting an inactive engine is a no-op.
func (e *Engine) ExitTaskMode() {
	e.mu.Lock()
	e.scope = nil
	e.mu.Unlock()
}

// ActiveScope returns the current task scope, if any.
func (e *Engine) ActiveScope() (TaskScope, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.scope == nil {
		return TaskScope{}, false
	}
	return *e.scope, true
}

// SetRiskOverride installs or replaces a per-operation risk override at
// runtime. Unknown operations and levels are rejected.
func (e *Engine) SetRiskOverride(name, level string) error {
	op, ok := ParseOperation(name)
	if !ok {
		return fmt.Errorf("unknown operation: %s", name)
	}
	parsed, ok := ParseRiskLevel(level)
	if !ok {
		return fmt.Errorf("unknown risk level: %s", level)
	}
	e.mu.Lock()
	e.overrides[op] = parsed
	e.mu.Unlock()
	return nil
}

func (e *Engine) classify(op Operation, params Params) Decision {
	switch op {
	case OpReadFile:
		return e.pathDecision(params.Path, RiskLow, "file read inside allowed directories", false)
	case OpListDir:
		return e.pathDecision(params.Path, RiskSafe, "directory listing inside allowed directories", false)
	case OpSearchFiles:
		return e.pathDecision(params.Path, RiskLow, "file search inside allowed directories", false)
	case OpWriteFile:
		return e.writeDecision(params.Path, "file write")
	case OpMoveFile:
		return e.moveDecision(params)
	case OpDeleteFile:
		return e.pathDecision(params.Path, RiskHigh, "file deletion always requires approval", true)
	case OpExec:
		return e.execDecision(params)
	case OpFetchPage:
		return e.fetchDecision(params.URL)
	case OpWebSearch:
		if !e.browserEnabled {
			return blockedDecision("browser tools are disabled")
		}
		return allowedDecision(RiskLow, "web search", false)
	case OpDownloadFile:
		return e.downloadDecision(params)
	default:
		return blockedDecision(fmt.Sprintf("unknown operation kind %q", op))
	}
}

func (e *Engine) pathDecision(path string, risk RiskLevel, reason string, requiresApproval bool) Decision {
	if _, err := e.paths.Check(path); err != nil {
		return blockedDecision(err.Error())
	}
	return allowedDecision(risk, reason, requiresApproval)
}

func (e *Engine) writeDecision(path, what string) Decision {
	if _, err := e.paths.Check(path); err != nil {
		return blockedDecision(err.Error())
	}
	if e.requireApprovalForWrites {
		return allowedDecision(RiskMedium, what+" requires approval", true)
	}
	return allowedDecision(RiskLow, what+" inside allowed directories", false)
}

func (e *Engine) moveDecision(params Params) Decision {
	if _, err := e.paths.Check(params.Path); err != nil {
		return blockedDecision(err.Error())
	}
	if _, err := e.paths.Check(params.Destination); err != nil {
		return blockedDecision("move destination refused: " + err.Error())
	}
	if e.requireApprovalForWrites {
		return allowedDecision(RiskMedium, "file move requires approval", true)
	}
	return allowedDecision(RiskLow, "file move inside allowed directories", false)
}

func (e *Engine) execDecision(params Params) Decision {
	if !e.shellEnabled {
		return blockedDecision("shell execution is disabled")
	}
	risk, reason := e.commands.Classify(params.Command)
	switch risk {
	case RiskBlocked:
		return blockedDecision(reason)
	case RiskLow:
		return allowedDecision(RiskLow, reason, false)
	default:
		return allowedDecision(RiskMedium, reason, true)
	}
}

func (e *Engine) fetchDecision(rawURL string) Decision {
	if !e.browserEnabled {
		return blockedDecision("browser tools are disabled")
	}
	if err := CheckURL(rawURL); err != nil {
		return blockedDecision(err.Error())
	}
	return allowedDecision(RiskLow, "outbound fetch", false)
}

func (e *Engine) downloadDecision(params Params) Decision {
	if !e.browserEnabled {
		return blockedDecision("browser tools are disabled")
	}
	if err := CheckURL(params.URL); err != nil {
		return blockedDecision(err.Error())
	}
	if _, err := e.paths.Check(params.Destination); err != nil {
		return blockedDecision("download destination refused: " + err.Error())
	}
	return allowedDecision(RiskHigh, "file download always requires approval", true)
}

// applyOverride replaces the built-in risk with a configured override.
// A blocked override is non-negotiable; delete and download stay high.
func (e *Engine) applyOverride(op Operation, decision Decision) Decision {
	e.mu.RLock()
	override, ok := e.overrides[op]
	e.mu.RUnlock()
	if !ok {
		return decision
	}

	if override == RiskBlocked {
		return blockedDecision(fmt.Sprintf("operation %s blocked by risk override", op))
	}
	if (op == OpDeleteFile || op == OpDownloadFile) && !override.AtLeast(RiskHigh) {
		return decision
	}

	decision.Risk = override
	decision.RequiresApproval = override == RiskMedium || override == RiskHigh
	decision.Reason = fmt.Sprintf("risk override for %s: %s", op, override)
	return decision
}
