// Package gateway exposes the local control API: approval resolution,
// policy checks and task management for the CLI.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/task"
	"github.com/MEKXH/warden/internal/version"
	"github.com/google/uuid"
)

// Server hosts the control API over plain HTTP on the loopback interface.
type Server struct {
	cfg        config.GatewayConfig
	gate       *approval.Gate
	engine     *policy.Engine
	governor   *task.Governor
	runtime    *metrics.RuntimeMetrics
	httpServer *http.Server
}

// New creates a control API server.
func New(cfg config.GatewayConfig, gate *approval.Gate, engine *policy.Engine, governor *task.Governor, runtime *metrics.RuntimeMetrics) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18790
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:      cfg,
		gate:     gate,
		engine:   engine,
		governor: governor,
		runtime:  runtime,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	mux := NewHandler(s.cfg.Token, s.gate, s.engine, s.governor, s.runtime)
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("control api listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// NewHandler builds the route table. Split from Start so tests can drive
// it with httptest.
func NewHandler(token string, gate *approval.Gate, engine *policy.Engine, governor *task.Governor, runtime *metrics.RuntimeMetrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if runtime == nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "runtime metrics are not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics":    runtime.Snapshot(),
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/approvals", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if gate == nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "approval gate is not configured")
			return
		}

		pending := gate.Pending()
		items := make([]map[string]any, 0, len(pending))
		for _, req := range pending {
			items = append(items, map[string]any{
				"id":          req.ID,
				"tool":        req.Tool,
				"args":        req.Args,
				"risk":        string(req.Risk),
				"description": req.Description,
				"created_at":  req.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"requests":   items,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/approvals/resolve", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if gate == nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "approval gate is not configured")
			return
		}

		var req struct {
			ID      string `json:"id"`
			Approve bool   `json:"approve"`
			By      string `json:"by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.By) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "id and by are required")
			return
		}

		err := gate.Resolve(strings.TrimSpace(req.ID), req.Approve, strings.TrimSpace(req.By))
		switch {
		case errors.Is(err, approval.ErrAlreadyHandled):
			writeError(w, requestID, http.StatusConflict, "already_handled", err.Error())
			return
		case errors.Is(err, approval.ErrNotAuthorized):
			writeError(w, requestID, http.StatusForbidden, "not_authorized", err.Error())
			return
		case err != nil:
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"resolved":   req.ID,
			"approved":   req.Approve,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/policy/check", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if engine == nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "policy engine is not configured")
			return
		}

		var req struct {
			Tool        string `json:"tool"`
			Path        string `json:"path"`
			Destination string `json:"destination"`
			Command     string `json:"command"`
			Dir         string `json:"dir"`
			URL         string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		if strings.TrimSpace(req.Tool) == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "tool is required")
			return
		}

		decision := engine.Evaluate(policy.Operation(strings.TrimSpace(req.Tool)), policy.Params{
			Path:        req.Path,
			Destination: req.Destination,
			Command:     req.Command,
			Dir:         req.Dir,
			URL:         req.URL,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"allowed":           decision.Allowed,
			"risk":              string(decision.Risk),
			"reason":            decision.Reason,
			"requires_approval": decision.RequiresApproval,
			"request_id":        requestID,
		})
	})

	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if governor == nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "task governor is not configured")
			return
		}

		switch r.Method {
		case http.MethodGet:
			plan, ok := governor.Current()
			if !ok {
				writeError(w, requestID, http.StatusNotFound, "not_found", "no tracked task")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"task":       plan,
				"request_id": requestID,
			})
		case http.MethodPost:
			var req struct {
				Description      string `json:"description"`
				WorkingDirectory string `json:"working_directory"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
				return
			}
			plan, err := governor.Plan(r.Context(), req.Description, req.WorkingDirectory)
			if err != nil {
				writeError(w, requestID, http.StatusUnprocessableEntity, "planning_failed", err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"task":       plan,
				"request_id": requestID,
			})
		default:
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		}
	})

	mux.HandleFunc("/tasks/execute", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if governor == nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "task governor is not configured")
			return
		}

		var req struct {
			TaskID string `json:"task_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		taskID := strings.TrimSpace(req.TaskID)
		if taskID == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "task_id is required")
			return
		}

		// Execution blocks on the whole-plan approval and on every step,
		// so it runs detached from the request.
		go func() {
			if _, err := governor.Execute(context.Background(), taskID); err != nil {
				slog.Error("task execution failed", "task_id", taskID, "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":    taskID,
			"request_id": requestID,
		})
	})

	mux.HandleFunc("/tasks/cancel", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if !authorize(w, r, token, requestID) {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if governor == nil {
			writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "task governor is not configured")
			return
		}

		plan, err := governor.Cancel()
		if err != nil {
			writeError(w, requestID, http.StatusConflict, "no_active_task", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"task":       plan,
			"request_id": requestID,
		})
	})

	return mux
}

func authorize(w http.ResponseWriter, r *http.Request, token, requestID string) bool {
	if strings.TrimSpace(token) == "" {
		return true
	}
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if strings.HasPrefix(got, prefix) && strings.TrimSpace(strings.TrimPrefix(got, prefix)) == token {
		return true
	}
	writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
	return false
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
