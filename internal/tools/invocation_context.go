package tools

import (
	"context"
	"strings"
)

type invocationContextKey struct{}

// InvocationContext carries caller metadata for tool execution. TaskID is
// set when a step runs under an approved task plan, which switches the
// guard to scoped task evaluation.
type InvocationContext struct {
	Channel  string
	SenderID string
	TaskID   string
}

// WithInvocationContext stores invocation metadata in context for tools.
func WithInvocationContext(ctx context.Context, meta InvocationContext) context.Context {
	return context.WithValue(ctx, invocationContextKey{}, meta)
}

// InvocationFromContext reads invocation metadata from context.
func InvocationFromContext(ctx context.Context) InvocationContext {
	v := ctx.Value(invocationContextKey{})
	meta, ok := v.(InvocationContext)
	if !ok {
		return InvocationContext{}
	}
	meta.Channel = strings.TrimSpace(meta.Channel)
	meta.SenderID = strings.TrimSpace(meta.SenderID)
	meta.TaskID = strings.TrimSpace(meta.TaskID)
	return meta
}
