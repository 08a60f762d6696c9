package heartbeat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/policy"
)

func TestRunOnce_RemindsAboutStaleRequests(t *testing.T) {
	now := time.Now()
	pending := func() []approval.Request {
		return []approval.Request{
			{ID: "old-1", Tool: "exec", Risk: policy.RiskHigh, CreatedAt: now.Add(-2 * time.Minute)},
			{ID: "fresh-1", Tool: "write_file", Risk: policy.RiskMedium, CreatedAt: now.Add(-2 * time.Second)},
		}
	}

	var sent string
	svc := NewService(Config{Enabled: true, MinAge: 30 * time.Second}, pending, func(ctx context.Context, text string) error {
		sent = text
		return nil
	})
	svc.now = func() time.Time { return now }

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !strings.Contains(sent, "old-1") {
		t.Fatalf("expected reminder for stale request, got: %q", sent)
	}
	if strings.Contains(sent, "fresh-1") {
		t.Fatalf("did not expect reminder for fresh request, got: %q", sent)
	}
	if !strings.Contains(sent, "1 approval(s) still pending") {
		t.Fatalf("unexpected reminder header: %q", sent)
	}
}

func TestNewService_ZeroMinAgeGetsDefault(t *testing.T) {
	now := time.Now()
	pending := func() []approval.Request {
		return []approval.Request{
			{ID: "fresh-1", Tool: "exec", CreatedAt: now.Add(-time.Second)},
		}
	}

	called := false
	svc := NewService(Config{Enabled: true}, pending, func(ctx context.Context, text string) error {
		called = true
		return nil
	})
	svc.now = func() time.Time { return now }

	if svc.cfg.MinAge != defaultMinAge {
		t.Fatalf("expected default min age %v, got %v", defaultMinAge, svc.cfg.MinAge)
	}
	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if called {
		t.Fatal("expected no reminder for a just-created request")
	}
}

func TestRunOnce_NoStaleRequestsSendsNothing(t *testing.T) {
	now := time.Now()
	pending := func() []approval.Request {
		return []approval.Request{
			{ID: "fresh-1", Tool: "exec", CreatedAt: now},
		}
	}

	called := false
	svc := NewService(Config{Enabled: true, MinAge: 30 * time.Second}, pending, func(ctx context.Context, text string) error {
		called = true
		return nil
	})
	svc.now = func() time.Time { return now }

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if called {
		t.Fatal("expected no reminder for fresh requests")
	}
}

func TestRunOnce_DisabledIsNoop(t *testing.T) {
	called := false
	svc := NewService(Config{Enabled: false}, func() []approval.Request {
		called = true
		return nil
	}, func(ctx context.Context, text string) error { return nil })

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if called {
		t.Fatal("expected disabled service to skip the pending check")
	}
}

func TestService_StartStop(t *testing.T) {
	svc := NewService(Config{Enabled: true, Interval: 10 * time.Millisecond}, func() []approval.Request {
		return nil
	}, func(ctx context.Context, text string) error { return nil })

	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if !svc.IsRunning() {
		t.Fatal("expected service to be running")
	}
	svc.Stop()
	if svc.IsRunning() {
		t.Fatal("expected service to be stopped")
	}
}

func TestService_DisabledDoesNotStart(t *testing.T) {
	svc := NewService(Config{Enabled: false}, nil, nil)
	if err := svc.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if svc.IsRunning() {
		t.Fatal("expected disabled service to stay stopped")
	}
}
