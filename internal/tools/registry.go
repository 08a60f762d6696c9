package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool is an executable tool. Eino tools built with utils.InferTool
// implement ToolInfo + InvokableRun.
type Tool interface {
	Info(ctx context.Context) (*schema.ToolInfo, error)
	InvokableRun(ctx context.Context, args string, opts ...tool.Option) (string, error)
}

// GuardAction is the verdict a guard returns for a tool invocation.
type GuardAction int

const (
	GuardAllow GuardAction = iota
	GuardDeny
	GuardRequireApproval
)

// GuardResult carries the guard's verdict and an operator-facing message.
type GuardResult struct {
	Action  GuardAction
	Message string
}

// GuardFunc inspects a tool invocation before it runs.
type GuardFunc func(ctx context.Context, name, argsJSON string) (GuardResult, error)

// Recorder observes completed tool executions.
type Recorder interface {
	RecordToolExecution(duration time.Duration, runErr error) error
}

// Registry manages tools by name. Every invocation passes through the
// configured guard before the tool runs.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	guard    GuardFunc
	recorder Recorder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// SetGuard installs the invocation guard. A nil guard lets everything
// through.
func (r *Registry) SetGuard(guard GuardFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guard = guard
}

// SetRecorder installs the execution metrics recorder.
func (r *Registry) SetRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	info, err := t.Info(context.Background())
	if err != nil {
		return err
	}
	if info == nil || info.Name == "" {
		return fmt.Errorf("tool info missing name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("tool already registered: %s", info.Name)
	}
	r.tools[info.Name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	return result
}

// Execute runs the named tool after consulting the guard. A denial is an
// error so callers treat it like a failed invocation; a pending approval is
// a normal result so the caller can relay it to the operator.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	r.mu.RLock()
	guard := r.guard
	recorder := r.recorder
	r.mu.RUnlock()

	if guard != nil {
		verdict, err := guard(ctx, name, argsJSON)
		if err != nil {
			return "", fmt.Errorf("guard check for %s: %w", name, err)
		}
		switch verdict.Action {
		case GuardDeny:
			return "", fmt.Errorf("tool %s denied: %s", name, verdict.Message)
		case GuardRequireApproval:
			return fmt.Sprintf("Pending approval: %s", verdict.Message), nil
		}
	}

	started := time.Now()
	result, err := t.InvokableRun(ctx, argsJSON)
	if recorder != nil {
		_ = recorder.RecordToolExecution(time.Since(started), err)
	}
	return result, err
}
