package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/warden/internal/policy"
	"github.com/google/uuid"
)

// DefaultTimeout is how long a request stays pending before it is denied.
const DefaultTimeout = 5 * time.Minute

// ErrAlreadyHandled is returned when resolving a request that was already
// resolved or has expired. Resolution is exactly-once.
var ErrAlreadyHandled = fmt.Errorf("request already handled")

// ErrNotAuthorized is returned when the responding identity is not in the
// authorized set.
var ErrNotAuthorized = fmt.Errorf("responder is not authorized")

// Request describes one pending human confirmation. Requests live only in
// memory; a restart drops them and callers simply re-request.
type Request struct {
	ID          string
	Tool        string
	Args        string
	Risk        policy.RiskLevel
	Description string
	CreatedAt   time.Time
}

// Notice is what the notification channel renders toward the human.
type Notice struct {
	Request  Request
	Approved bool
	Expired  bool
	By       string
}

// Notifier broadcasts approval traffic to the human-facing channel.
type Notifier interface {
	NotifyRequest(ctx context.Context, req Request)
	NotifyResolution(ctx context.Context, notice Notice)
}

type pendingRequest struct {
	Request
	done chan bool
}

// Gate tracks pending approval requests and suspends callers until a human
// resolves them or the timeout denies them. The pending table is the only
// shared state; insert, resolve, and expire are its only mutators.
type Gate struct {
	timeout    time.Duration
	notifier   Notifier
	authorized map[string]struct{}
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout overrides the default pending timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithNotifier attaches the human-facing notification channel.
func WithNotifier(n Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

// WithAuthorizedUsers restricts who may resolve requests. An empty set
// permits anyone, which is only sensible for a single-operator deployment.
func WithAuthorizedUsers(users []string) Option {
	return func(g *Gate) {
		for _, user := range users {
			if trimmed := strings.TrimSpace(user); trimmed != "" {
				g.authorized[trimmed] = struct{}{}
			}
		}
	}
}

// SetNotifier attaches the notification channel after construction, for
// channels that themselves hold a reference to the gate. Call before the
// gate starts serving requests.
func (g *Gate) SetNotifier(n Notifier) {
	g.notifier = n
}

// NewGate creates an approval gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		timeout:    DefaultTimeout,
		authorized: make(map[string]struct{}),
		now:        time.Now,
		pending:    make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request registers a pending approval, notifies the human channel, and
// blocks until a resolution arrives or the timeout fires. Timeout and
// context cancellation both read as denial; the gate fails closed.
func (g *Gate) Request(ctx context.Context, tool, args string, risk policy.RiskLevel, description string) bool {
	p := &pendingRequest{
		Request: Request{
			ID:          uuid.NewString(),
			Tool:        strings.TrimSpace(tool),
			Args:        args,
			Risk:        risk,
			Description: strings.TrimSpace(description),
			CreatedAt:   g.now().UTC(),
		},
		done: make(chan bool, 1),
	}

	g.mu.Lock()
	g.pending[p.ID] = p
	g.mu.Unlock()

	slog.Info("approval requested", "id", p.ID, "tool", p.Tool, "risk", p.Risk)
	if g.notifier != nil {
		g.notifier.NotifyRequest(ctx, p.Request)
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case approved := <-p.done:
		return approved
	case <-timer.C:
		if g.take(p.ID) == nil {
			// A resolution won the race; its verdict stands.
			return <-p.done
		}
		slog.Info("approval timed out", "id", p.ID, "tool", p.Tool)
		g.notifyResolution(ctx, Notice{Request: p.Request, Expired: true})
		return false
	case <-ctx.Done():
		if g.take(p.ID) == nil {
			return <-p.done
		}
		return false
	}
}

// Resolve applies a structured accept/reject signal. It verifies the
// responder, and resolving an already-handled request reports
// ErrAlreadyHandled instead of silently succeeding twice.
func (g *Gate) Resolve(id string, approve bool, by string) error {
	if !g.isAuthorized(by) {
		return ErrNotAuthorized
	}

	p := g.take(strings.TrimSpace(id))
	if p == nil {
		return ErrAlreadyHandled
	}
	p.done <- approve

	slog.Info("approval resolved", "id", p.ID, "tool", p.Tool, "approved", approve, "by", by)
	g.notifyResolution(context.Background(), Notice{Request: p.Request, Approved: approve, By: by})
	return nil
}

// HandleUtterance classifies free text from an authorized user and, on a
// match, resolves the most recently created pending request. The return
// value reports whether the text consumed a pending request.
//
// When several requests are pending, "yes" answers whichever was created
// last, which is not necessarily the one the human meant. Callers that need
// precision should use Resolve with an explicit id.
func (g *Gate) HandleUtterance(userID, text string) (Request, bool) {
	if !g.isAuthorized(userID) {
		return Request{}, false
	}
	approve, ok := classifyUtterance(text)
	if !ok {
		return Request{}, false
	}

	g.mu.Lock()
	var newest *pendingRequest
	for _, p := range g.pending {
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	if newest != nil {
		delete(g.pending, newest.ID)
	}
	g.mu.Unlock()

	if newest == nil {
		return Request{}, false
	}
	newest.done <- approve

	slog.Info("approval resolved by utterance", "id", newest.ID, "approved", approve, "user", userID)
	g.notifyResolution(context.Background(), Notice{Request: newest.Request, Approved: approve, By: userID})
	return newest.Request, true
}

// Pending returns a snapshot of pending requests, oldest first.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	requests := make([]Request, 0, len(g.pending))
	for _, p := range g.pending {
		requests = append(requests, p.Request)
	}
	g.mu.Unlock()

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests
}

func (g *Gate) take(id string) *pendingRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[id]
	if !ok {
		return nil
	}
	delete(g.pending, id)
	return p
}

func (g *Gate) isAuthorized(user string) bool {
	if len(g.authorized) == 0 {
		return true
	}
	_, ok := g.authorized[strings.TrimSpace(user)]
	return ok
}

func (g *Gate) notifyResolution(ctx context.Context, notice Notice) {
	if g.notifier != nil {
		g.notifier.NotifyResolution(ctx, notice)
	}
}
