package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/task"
)

type cannedPlanner struct {
	raw string
}

func (c *cannedPlanner) GeneratePlan(ctx context.Context, description, workingDirectory string) (string, error) {
	return c.raw, nil
}

type nopExecutor struct{}

func (nopExecutor) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	return "ok", nil
}

func newTestEngine(t *testing.T, workspace string) *policy.Engine {
	t.Helper()
	return policy.NewEngine(policy.Config{
		AllowedDirectories: []string{workspace},
		ShellEnabled:       true,
		BrowserEnabled:     true,
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, decoded
}

func TestHandler_Health(t *testing.T) {
	handler := NewHandler("", nil, nil, nil, nil)
	rec, body := doJSON(t, handler, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHandler_TokenRequired(t *testing.T) {
	handler := NewHandler("secret", approval.NewGate(), nil, nil, nil)

	rec, _ := doJSON(t, handler, http.MethodGet, "/approvals", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/approvals", "secret", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestHandler_ApprovalsListAndResolve(t *testing.T) {
	gate := approval.NewGate(approval.WithTimeout(5 * time.Second))
	handler := NewHandler("", gate, nil, nil, nil)

	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- gate.Request(context.Background(), "write_file", `{"path":"/srv/x"}`, policy.RiskMedium, "write_file: /srv/x")
	}()

	var id string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pending := gate.Pending()
		if len(pending) > 0 {
			id = pending[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if id == "" {
		t.Fatal("request never became pending")
	}

	rec, body := doJSON(t, handler, http.MethodGet, "/approvals", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d", rec.Code)
	}
	requests, ok := body["requests"].([]any)
	if !ok || len(requests) != 1 {
		t.Fatalf("expected one pending request, got %v", body)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/approvals/resolve", "",
		`{"id": "`+id+`", "approve": true, "by": "operator"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve returned %d", rec.Code)
	}

	select {
	case approved := <-resultCh:
		if !approved {
			t.Fatal("expected request approved")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not unblock")
	}

	// Exactly-once: a second resolution conflicts.
	rec, _ = doJSON(t, handler, http.MethodPost, "/approvals/resolve", "",
		`{"id": "`+id+`", "approve": false, "by": "operator"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double resolve, got %d", rec.Code)
	}
}

func TestHandler_ResolveUnauthorizedResponder(t *testing.T) {
	gate := approval.NewGate(
		approval.WithTimeout(5*time.Second),
		approval.WithAuthorizedUsers([]string{"alice"}),
	)
	handler := NewHandler("", gate, nil, nil, nil)

	go gate.Request(context.Background(), "exec", `{"command":"npm install"}`, policy.RiskMedium, "exec: npm install")

	var id string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pending := gate.Pending(); len(pending) > 0 {
			id = pending[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if id == "" {
		t.Fatal("request never became pending")
	}

	rec, _ := doJSON(t, handler, http.MethodPost, "/approvals/resolve", "",
		`{"id": "`+id+`", "approve": true, "by": "mallory"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unauthorized responder, got %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/approvals/resolve", "",
		`{"id": "`+id+`", "approve": true, "by": "alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for authorized responder, got %d", rec.Code)
	}
}

func TestHandler_PolicyCheck(t *testing.T) {
	workspace := t.TempDir()
	handler := NewHandler("", nil, newTestEngine(t, workspace), nil, nil)

	rec, body := doJSON(t, handler, http.MethodPost, "/policy/check", "",
		`{"tool": "read_file", "path": "/etc/passwd"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("check returned %d", rec.Code)
	}
	if body["allowed"] != false {
		t.Fatalf("expected /etc/passwd read denied, got %v", body)
	}
	if body["risk"] != "blocked" {
		t.Fatalf("expected blocked risk, got %v", body)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/policy/check", "", `{"path": "/tmp/x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tool, got %d", rec.Code)
	}
}

func TestHandler_TaskLifecycle(t *testing.T) {
	workspace := t.TempDir()
	engine := newTestEngine(t, workspace)
	planner := &cannedPlanner{raw: `[{"tool": "list_dir", "args": {"path": "` + workspace + `"}}]`}
	governor := task.NewGovernor(engine, nil, nil, planner, nopExecutor{})
	handler := NewHandler("", nil, engine, governor, nil)

	rec, _ := doJSON(t, handler, http.MethodGet, "/tasks", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no task, got %d", rec.Code)
	}

	rec, body := doJSON(t, handler, http.MethodPost, "/tasks", "",
		`{"description": "inspect workspace", "working_directory": "`+workspace+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("plan returned %d: %v", rec.Code, body)
	}
	planBody, ok := body["task"].(map[string]any)
	if !ok {
		t.Fatalf("missing task in response: %v", body)
	}
	taskID, _ := planBody["id"].(string)
	if taskID == "" {
		t.Fatalf("missing task id: %v", planBody)
	}
	if planBody["status"] != string(task.PlanAwaitingApproval) {
		t.Fatalf("expected awaiting_approval, got %v", planBody["status"])
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/tasks/execute", "", `{"task_id": "`+taskID+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("execute returned %d", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		plan, ok := governor.Current()
		if ok && plan.Status.Terminal() {
			if plan.Status != task.PlanCompleted {
				t.Fatalf("expected completed task, got %s (%s)", plan.Status, plan.Error)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never finished")
}

func TestHandler_TaskPlanningFailure(t *testing.T) {
	workspace := t.TempDir()
	engine := newTestEngine(t, workspace)
	governor := task.NewGovernor(engine, nil, nil, &cannedPlanner{raw: "no json here"}, nopExecutor{})
	handler := NewHandler("", nil, engine, governor, nil)

	rec, body := doJSON(t, handler, http.MethodPost, "/tasks", "",
		`{"description": "vague", "working_directory": "`+workspace+`"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", rec.Code, body)
	}
}

func TestHandler_TaskCancelWithoutTask(t *testing.T) {
	workspace := t.TempDir()
	engine := newTestEngine(t, workspace)
	governor := task.NewGovernor(engine, nil, nil, &cannedPlanner{raw: "[]"}, nopExecutor{})
	handler := NewHandler("", nil, engine, governor, nil)

	rec, _ := doJSON(t, handler, http.MethodPost, "/tasks/cancel", "", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 with no active task, got %d", rec.Code)
	}
}

func TestHandler_Metrics(t *testing.T) {
	rec, body := doJSON(t, NewHandler("", nil, nil, nil, nil), http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a recorder, got %d", rec.Code)
	}

	runtime := metrics.NewRuntimeMetrics(t.TempDir())
	_ = runtime.RecordDecision("denied")

	rec, body = doJSON(t, NewHandler("", nil, nil, nil, runtime), http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	snap, ok := body["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("expected metrics object, got %v", body)
	}
	decision, ok := snap["decision"].(map[string]any)
	if !ok || decision["denied"].(float64) != 1 {
		t.Fatalf("expected one denied decision, got %v", snap)
	}
}
