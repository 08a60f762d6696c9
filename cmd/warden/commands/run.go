package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/gateway"
	"github.com/MEKXH/warden/internal/guard"
	"github.com/MEKXH/warden/internal/heartbeat"
	"github.com/MEKXH/warden/internal/metrics"
	"github.com/MEKXH/warden/internal/notify"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/provider"
	"github.com/MEKXH/warden/internal/state"
	"github.com/MEKXH/warden/internal/task"
	"github.com/MEKXH/warden/internal/tools"
	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start Warden server",
		RunE:  runServer,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	engine := policy.NewEngine(cfg.PolicyEngineConfig(workspacePath))
	auditLog := audit.NewLog(workspacePath)
	runtimeMetrics := metrics.NewRuntimeMetrics(workspacePath)

	gate := approval.NewGate(
		approval.WithTimeout(time.Duration(cfg.Approval.TimeoutSeconds)*time.Second),
		approval.WithAuthorizedUsers(cfg.Approval.AuthorizedUsers),
	)

	var tg *notify.Telegram
	if cfg.Channels.Telegram.Enabled {
		tg = notify.NewTelegram(&cfg.Channels.Telegram, gate)
		gate.SetNotifier(tg)
	}

	registry := tools.NewRegistry()
	if err := registerDefaultTools(registry, cfg); err != nil {
		return err
	}
	registry.SetGuard(guard.New(engine, gate, auditLog, guard.WithMetrics(runtimeMetrics)).Func())
	registry.SetRecorder(runtimeMetrics)

	var governor *task.Governor
	chatModel, err := provider.NewChatModel(ctx, cfg)
	if err != nil {
		slog.Warn("no planner model configured, task mode disabled", "error", err)
	} else {
		opts := []task.GovernorOption{
			task.WithDefaultWorkingDirectory(workspacePath),
			task.WithPlanStore(state.NewManager(workspacePath)),
		}
		if tg != nil {
			opts = append(opts, task.WithProgressSink(tg))
		}
		governor = task.NewGovernor(engine, gate, auditLog, task.NewModelPlanner(chatModel), registry, opts...)
	}

	var reminder *heartbeat.Service
	if tg != nil {
		reminder = heartbeat.NewService(
			heartbeat.Config{Enabled: true},
			gate.Pending,
			func(ctx context.Context, text string) error {
				tg.Announce(text)
				return nil
			},
		)
		if err := reminder.Start(); err != nil {
			slog.Warn("approval reminder failed to start", "error", err)
		}
	}

	errCh := make(chan error, 2)

	if tg != nil {
		go func() {
			if err := tg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("telegram channel failed: %w", err)
			}
		}()
	}

	gatewayServer := gateway.New(cfg.Gateway, gate, engine, governor, runtimeMetrics)
	go func() {
		if err := gatewayServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server failed: %w", err)
		}
	}()

	fmt.Printf("Warden server running. Gateway: http://%s\nPress Ctrl+C to stop.\n", gatewayServer.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	if reminder != nil {
		reminder.Stop()
	}
	if tg != nil {
		_ = tg.Stop(shutdownCtx)
	}
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("gateway shutdown failed", "error", err)
	}

	return runErr
}

func registerDefaultTools(registry *tools.Registry, cfg *config.Config) error {
	builders := []func() (tools.Tool, error){
		func() (tools.Tool, error) { return tools.NewReadFileTool() },
		func() (tools.Tool, error) { return tools.NewWriteFileTool() },
		func() (tools.Tool, error) { return tools.NewListDirTool() },
		func() (tools.Tool, error) { return tools.NewSearchFilesTool() },
		func() (tools.Tool, error) { return tools.NewMoveFileTool() },
		func() (tools.Tool, error) { return tools.NewDeleteFileTool() },
		func() (tools.Tool, error) { return tools.NewExecTool(cfg.Tools.Exec.Timeout) },
		func() (tools.Tool, error) {
			return tools.NewWebSearchTool(cfg.Tools.Web.Search.APIKey, cfg.Tools.Web.Search.MaxResults)
		},
		func() (tools.Tool, error) { return tools.NewFetchPageTool() },
		func() (tools.Tool, error) { return tools.NewDownloadFileTool() },
	}

	for _, build := range builders {
		t, err := build()
		if err != nil {
			return fmt.Errorf("failed to create tool: %w", err)
		}
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("failed to register tool: %w", err)
		}
	}
	return nil
}
