package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MEKXH/warden/internal/task"
)

func TestManager_SaveAndLoadPlan(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	plan := &task.Plan{
		ID:               "plan-1",
		Description:      "tidy the workspace",
		WorkingDirectory: dir,
		Status:           task.PlanCompleted,
		CreatedAt:        time.Now().UTC(),
		Steps: []task.Step{
			{ID: "s1", Tool: "list_dir", Description: "list files", Status: task.StepCompleted},
		},
	}
	if err := mgr.SavePlan(plan); err != nil {
		t.Fatalf("SavePlan error: %v", err)
	}

	loaded, ok := mgr.LoadPlan()
	if !ok {
		t.Fatal("expected a persisted plan")
	}
	if loaded.ID != "plan-1" || loaded.Status != task.PlanCompleted {
		t.Fatalf("unexpected plan: %+v", loaded)
	}
	if len(loaded.Steps) != 1 || loaded.Steps[0].Tool != "list_dir" {
		t.Fatalf("unexpected steps: %+v", loaded.Steps)
	}
}

func TestManager_LoadPlan_MissingFile(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if _, ok := mgr.LoadPlan(); ok {
		t.Fatal("expected no plan for empty state")
	}
}

func TestManager_LoadPlan_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state")
	if err := os.MkdirAll(statePath, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(statePath, "task.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mgr := NewManager(dir)
	if _, ok := mgr.LoadPlan(); ok {
		t.Fatal("expected malformed state to read as no plan")
	}
}

func TestManager_SavePlan_NilIsNoop(t *testing.T) {
	mgr := NewManager(t.TempDir())
	if err := mgr.SavePlan(nil); err != nil {
		t.Fatalf("SavePlan(nil) error: %v", err)
	}
	if _, ok := mgr.LoadPlan(); ok {
		t.Fatal("expected no plan after nil save")
	}
}
