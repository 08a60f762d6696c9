package task

import "time"

// PlanStatus is the lifecycle state of a task plan.
type PlanStatus string

const (
	PlanAwaitingApproval PlanStatus = "awaiting_approval"
	PlanApproving        PlanStatus = "approving"
	PlanRunning          PlanStatus = "running"
	PlanCompleted        PlanStatus = "completed"
	PlanFailed           PlanStatus = "failed"
	PlanCancelled        PlanStatus = "cancelled"
)

// Terminal reports whether the plan can no longer change state.
func (s PlanStatus) Terminal() bool {
	switch s {
	case PlanCompleted, PlanFailed, PlanCancelled:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step has finished one way or another.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Step is one tool call inside a plan. Steps run strictly in sequence.
type Step struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	Status      StepStatus     `json:"status"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Plan is a human-approved sequence of steps executed under task mode.
type Plan struct {
	ID               string     `json:"id"`
	Description      string     `json:"description"`
	WorkingDirectory string     `json:"working_directory"`
	Steps            []Step     `json:"steps"`
	Status           PlanStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      time.Time  `json:"completed_at,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// Progress is emitted toward the human-facing channel once per step
// transition.
type Progress struct {
	TaskID          string
	StepIndex       int
	TotalSteps      int
	StepDescription string
	Status          StepStatus
}
