package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/MEKXH/warden/internal/task"
)

const planStateFileMode = 0644

// Manager persists lightweight runtime state. The governor saves a plan
// snapshot on every transition so the last task survives a restart.
type Manager struct {
	planPath string
	mu       sync.Mutex
}

// NewManager creates a state manager under <baseDir>/state.
func NewManager(baseDir string) *Manager {
	return &Manager{
		planPath: filepath.Join(baseDir, "state", "task.json"),
	}
}

// SavePlan writes the plan snapshot to disk atomically.
func (m *Manager) SavePlan(plan *task.Plan) error {
	if plan == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.planPath), 0755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	tempPath := m.planPath + ".tmp"
	if err := os.WriteFile(tempPath, payload, planStateFileMode); err != nil {
		return err
	}
	return os.Rename(tempPath, m.planPath)
}

// LoadPlan reads the last persisted plan snapshot.
// Missing or malformed files are treated as no plan.
func (m *Manager) LoadPlan() (*task.Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.planPath)
	if err != nil {
		return nil, false
	}
	var plan task.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, false
	}
	if plan.ID == "" {
		return nil, false
	}
	return &plan, true
}
