package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	auditFileMode = 0644
	auditDirMode  = 0755
)

// Outcome is the final disposition of an evaluated or executed action.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Entry is one audit record written as a single JSON line. Entries are never
// updated or deleted; the log is a sink, not a source of authorization.
type Entry struct {
	Time            time.Time `json:"time"`
	Tool            string    `json:"tool"`
	Args            string    `json:"args,omitempty"`
	Risk            string    `json:"risk,omitempty"`
	Outcome         Outcome   `json:"outcome"`
	Reason          string    `json:"reason,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	ExecutionTimeMs int64     `json:"execution_time_ms,omitempty"`
	Result          string    `json:"result,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Log appends audit entries to <workspace>/state/audit.jsonl.
type Log struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewLog creates an append-only audit log rooted at workspace state.
func NewLog(workspace string) *Log {
	return &Log{
		path: filepath.Join(workspace, "state", "audit.jsonl"),
		now:  time.Now,
	}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Record appends an entry and never propagates a write failure to the
// caller: a logging failure must not turn into a refusal of an action that
// was already authorized. Failures go to the operational log.
func (l *Log) Record(entry Entry) {
	if err := l.Append(entry); err != nil {
		slog.Warn("failed to append audit entry", "tool", entry.Tool, "outcome", entry.Outcome, "error", err)
	}
}

// Append writes one entry as one JSONL line, fsyncing before returning.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Time.IsZero() {
		entry.Time = l.now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(l.path), auditDirMode); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	encoded = append(encoded, '\n')

	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}
