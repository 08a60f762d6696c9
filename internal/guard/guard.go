// Package guard connects the policy engine, the approval gate and the
// audit log into a single pre-invocation check for the tool registry.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/tools"
)

// Guard evaluates every tool invocation before it runs: policy decision
// first, then a blocking approval round-trip when the decision asks for
// one, with each step recorded in the audit log.
type Guard struct {
	engine  *policy.Engine
	gate    *approval.Gate
	log     *audit.Log
	runtime *metrics.RuntimeMetrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithMetrics attaches a runtime metrics recorder. Each guard verdict
// updates the decision counters.
func WithMetrics(rec *metrics.RuntimeMetrics) Option {
	return func(g *Guard) { g.runtime = rec }
}

// New creates a guard. gate may be nil, in which case operations that
// need approval are reported as pending instead of executed. log may be
// nil to disable auditing.
func New(engine *policy.Engine, gate *approval.Gate, log *audit.Log, opts ...Option) *Guard {
	g := &Guard{engine: engine, gate: gate, log: log}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Func adapts the guard for registry installation.
func (g *Guard) Func() tools.GuardFunc {
	return g.Check
}

// Check runs the full evaluation cycle for one invocation. It blocks
// while an approval request is outstanding, up to the gate's timeout.
func (g *Guard) Check(ctx context.Context, name, argsJSON string) (tools.GuardResult, error) {
	params := parseParams(argsJSON)
	op := policy.Operation(strings.ToLower(strings.TrimSpace(name)))
	meta := tools.InvocationFromContext(ctx)

	var decision policy.Decision
	if meta.TaskID != "" {
		decision = g.engine.EvaluateForTask(op, params)
	} else {
		decision = g.engine.Evaluate(op, params)
	}

	if !decision.Allowed {
		g.record(name, argsJSON, decision.Risk, audit.OutcomeDenied, decision.Reason, meta.SenderID)
		return tools.GuardResult{Action: tools.GuardDeny, Message: decision.Reason}, nil
	}

	if decision.RequiresApproval {
		if g.gate == nil {
			reason := fmt.Sprintf("approval required for %s but no approver is configured", name)
			g.record(name, argsJSON, decision.Risk, audit.OutcomeDenied, reason, meta.SenderID)
			return tools.GuardResult{Action: tools.GuardRequireApproval, Message: reason}, nil
		}

		approved := g.gate.Request(ctx, name, argsJSON, decision.Risk, describeInvocation(name, params))
		if !approved {
			reason := fmt.Sprintf("approval for %s was rejected or expired", name)
			g.record(name, argsJSON, decision.Risk, audit.OutcomeRejected, reason, meta.SenderID)
			return tools.GuardResult{Action: tools.GuardDeny, Message: reason}, nil
		}
		g.record(name, argsJSON, decision.Risk, audit.OutcomeApproved, decision.Reason, meta.SenderID)
		return tools.GuardResult{Action: tools.GuardAllow, Message: decision.Reason}, nil
	}

	g.record(name, argsJSON, decision.Risk, audit.OutcomeAllowed, decision.Reason, meta.SenderID)
	return tools.GuardResult{Action: tools.GuardAllow, Message: decision.Reason}, nil
}

func (g *Guard) record(tool, args string, risk policy.RiskLevel, outcome audit.Outcome, reason, userID string) {
	_ = g.runtime.RecordDecision(string(outcome))
	if g.log == nil {
		return
	}
	g.log.Record(audit.Entry{
		Tool:    tool,
		Args:    args,
		Risk:    string(risk),
		Outcome: outcome,
		Reason:  reason,
		UserID:  userID,
	})
}

// parseParams pulls the policy-relevant arguments out of the raw tool
// args. Malformed JSON yields empty params; the engine then evaluates the
// operation on its kind alone, which fails closed for path-bound tools.
func parseParams(argsJSON string) policy.Params {
	var raw struct {
		Path        string `json:"path"`
		Destination string `json:"destination"`
		Command     string `json:"command"`
		Dir         string `json:"dir"`
		URL         string `json:"url"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &raw); err != nil {
		return policy.Params{}
	}
	return policy.Params{
		Path:        raw.Path,
		Destination: raw.Destination,
		Command:     raw.Command,
		Dir:         raw.Dir,
		URL:         raw.URL,
	}
}

func describeInvocation(name string, params policy.Params) string {
	switch {
	case params.Command != "":
		return fmt.Sprintf("%s: %s", name, params.Command)
	case params.URL != "" && params.Destination != "":
		return fmt.Sprintf("%s: %s -> %s", name, params.URL, params.Destination)
	case params.URL != "":
		return fmt.Sprintf("%s: %s", name, params.URL)
	case params.Path != "" && params.Destination != "":
		return fmt.Sprintf("%s: %s -> %s", name, params.Path, params.Destination)
	case params.Path != "":
		return fmt.Sprintf("%s: %s", name, params.Path)
	}
	return name
}
