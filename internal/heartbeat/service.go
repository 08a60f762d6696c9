// Package heartbeat periodically reminds the operator about approval
// requests that have been pending for a while.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/warden/internal/approval"
)

const (
	defaultInterval = time.Minute
	defaultMinAge   = 30 * time.Second
)

// PendingFunc lists the currently pending approval requests.
type PendingFunc func() []approval.Request

// RemindFunc sends a reminder to the human-facing channel.
type RemindFunc func(ctx context.Context, text string) error

// Config controls reminder runtime behavior.
type Config struct {
	Enabled  bool
	Interval time.Duration
	MinAge   time.Duration
}

// Service runs the periodic pending-approval reminder.
type Service struct {
	cfg     Config
	pending PendingFunc
	remind  RemindFunc

	now func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
	running bool
}

// NewService creates a reminder service.
func NewService(cfg Config, pending PendingFunc, remind RemindFunc) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = defaultMinAge
	}
	return &Service{
		cfg:     cfg,
		pending: pending,
		remind:  remind,
		now:     time.Now,
	}
}

// IsRunning returns true when the service loop is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the periodic reminder loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		slog.Info("approval reminders disabled")
		return nil
	}

	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	s.running = true

	go s.loop(s.stopCh, s.stopped)
	slog.Info("approval reminder service started", "interval", s.cfg.Interval.String())
	return nil
}

// Stop halts the reminder loop.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	stopped := s.stopped
	s.running = false
	s.stopCh = nil
	s.stopped = nil
	s.mu.Unlock()

	close(stopCh)
	<-stopped
	slog.Info("approval reminder service stopped")
}

func (s *Service) loop(stopCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := s.RunOnce(context.Background()); err != nil {
				slog.Warn("approval reminder failed", "error", err)
			}
		}
	}
}

// RunOnce sends a single reminder covering requests older than MinAge.
// No stale requests means no message.
func (s *Service) RunOnce(ctx context.Context) error {
	if !s.cfg.Enabled || s.pending == nil || s.remind == nil {
		return nil
	}

	now := s.now()
	var stale []approval.Request
	for _, req := range s.pending() {
		if now.Sub(req.CreatedAt) >= s.cfg.MinAge {
			stale = append(stale, req)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d approval(s) still pending:\n", len(stale))
	for _, req := range stale {
		age := now.Sub(req.CreatedAt).Round(time.Second)
		fmt.Fprintf(&b, "- %s [%s] %s (%s)\n", req.ID, req.Risk, req.Tool, age)
	}

	if err := s.remind(ctx, strings.TrimRight(b.String(), "\n")); err != nil {
		return err
	}
	slog.Info("approval reminder sent", "pending", len(stale))
	return nil
}
