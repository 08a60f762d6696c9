package metrics

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRuntimeMetrics_AggregatesToolAndDecisionStats(t *testing.T) {
	workspace := t.TempDir()
	recorder := NewRuntimeMetrics(workspace)

	if err := recorder.RecordToolExecution(120*time.Millisecond, nil); err != nil {
		t.Fatalf("RecordToolExecution success error: %v", err)
	}
	snap := recorder.Snapshot()
	if snap.Tool.Total != 1 || snap.Tool.Errors != 0 || snap.Tool.Timeouts != 0 {
		t.Fatalf("unexpected first tool snapshot: %+v", snap.Tool)
	}

	_ = recorder.RecordToolExecution(250*time.Millisecond, errors.New("exec failed"))
	_ = recorder.RecordToolExecution(2*time.Second, context.DeadlineExceeded)
	_ = recorder.RecordToolExecution(1500*time.Millisecond, errors.New("request timed out"))

	snap = recorder.Snapshot()
	if snap.Tool.Total != 4 {
		t.Fatalf("expected 4 tool executions, got %d", snap.Tool.Total)
	}
	if snap.Tool.Errors != 3 {
		t.Fatalf("expected 3 tool errors, got %d", snap.Tool.Errors)
	}
	if snap.Tool.Timeouts != 2 {
		t.Fatalf("expected 2 tool timeouts, got %d", snap.Tool.Timeouts)
	}
	if got := snap.Tool.ErrorRatio(); got < 0.74 || got > 0.76 {
		t.Fatalf("expected error ratio about 0.75, got %.4f", got)
	}
	if snap.Tool.P95ProxyLatencyMs <= 0 {
		t.Fatalf("expected p95 proxy latency > 0, got %d", snap.Tool.P95ProxyLatencyMs)
	}

	_ = recorder.RecordDecision("allowed")
	_ = recorder.RecordDecision("denied")
	_ = recorder.RecordDecision("approved")
	_ = recorder.RecordDecision("rejected")
	_ = recorder.RecordDecision("something_else")

	snap = recorder.Snapshot()
	if snap.Decision.Total() != 4 {
		t.Fatalf("expected 4 decisions, got %d", snap.Decision.Total())
	}
	if got := snap.Decision.DeniedRatio(); got < 0.49 || got > 0.51 {
		t.Fatalf("expected denied ratio about 0.50, got %.4f", got)
	}
}

func TestRuntimeMetrics_PersistsAndReadsSnapshot(t *testing.T) {
	workspace := t.TempDir()
	recorder := NewRuntimeMetrics(workspace)

	_ = recorder.RecordDecision("allowed")
	if err := recorder.RecordToolExecution(40*time.Millisecond, nil); err != nil {
		t.Fatalf("RecordToolExecution error: %v", err)
	}

	snap, err := ReadRuntimeSnapshot(workspace)
	if err != nil {
		t.Fatalf("ReadRuntimeSnapshot error: %v", err)
	}
	if !snap.HasData() {
		t.Fatal("expected persisted snapshot to have data")
	}
	if snap.Decision.Allowed != 1 || snap.Tool.Total != 1 {
		t.Fatalf("unexpected persisted snapshot: %+v", snap)
	}
}

func TestReadRuntimeSnapshot_MissingFile(t *testing.T) {
	snap, err := ReadRuntimeSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("ReadRuntimeSnapshot error: %v", err)
	}
	if snap.HasData() {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestLatencyBucketIndex(t *testing.T) {
	if got := latencyBucketIndex(5); got != 0 {
		t.Fatalf("latencyBucketIndex(5) = %d, want 0", got)
	}
	if got := latencyBucketIndex(100); got != 3 {
		t.Fatalf("latencyBucketIndex(100) = %d, want 3", got)
	}
	if got := latencyBucketIndex(60000); got != len(latencyBucketUpperBoundsMs) {
		t.Fatalf("latencyBucketIndex(60000) = %d, want %d", got, len(latencyBucketUpperBoundsMs))
	}
}
