package dependency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/diegors10/projetoAPIs/pkg/logger"
	"github.com/diegors10/projetoAPIs/pkg/metrics"
)

// FallbackExecutor tries the sidecar first and degrades to local execution when
// the sidecar cannot be reached. Once degraded it stays local until HealthCheck
// finds the sidecar healthy again.
type FallbackExecutor struct {
	remote      DependencyExecutor
	local       DependencyExecutor
	primaryMode ExecutionMode
	mu          sync.RWMutex
	log         *slog.Logger
}

// NewFallbackExecutor creates a new FallbackExecutor with remote as the initial primary mode.
func NewFallbackExecutor(config ExecutorConfig) *FallbackExecutor {
	return newFallbackExecutor(NewRemoteExecutor(config), NewLocalExecutor(config))
}

func newFallbackExecutor(remote, local DependencyExecutor) *FallbackExecutor {
	return &FallbackExecutor{
		remote:      remote,
		local:       local,
		primaryMode: ModeRemote,
		log:         logger.OrDiscard().With("component", "fallback-executor"),
	}
}

// Mode returns the currently active execution mode.
func (e *FallbackExecutor) Mode() ExecutionMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.primaryMode
}

// ExecuteCommand executes a command using the current primary mode, with automatic fallback.
func (e *FallbackExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	if e.Mode() == ModeLocal {
		return e.local.ExecuteCommand(ctx, req)
	}

	resp, err := e.remote.ExecuteCommand(ctx, req)
	if err == nil || !isNetworkError(err) {
		return resp, err
	}

	e.log.Warn("remote execution failed, attempting local fallback",
		"command", req.Command,
		"error", err.Error())

	resp, err = e.local.ExecuteCommand(ctx, req)
	if err == nil && resp.Success {
		e.setPrimaryMode(ModeLocal)
		metrics.RecordDegradationEvent(string(ModeRemote), string(ModeLocal))
		e.log.Info("local fallback succeeded, primary mode is now local", "command", req.Command)
	}
	return resp, err
}

// HealthCheck probes the sidecar first, then the local tools, and selects the mode accordingly.
func (e *FallbackExecutor) HealthCheck(ctx context.Context) error {
	remoteErr := e.remote.HealthCheck(ctx)
	if remoteErr == nil {
		if e.Mode() != ModeRemote {
			e.log.Info("dependency service recovered, switching back to remote mode")
		}
		e.setPrimaryMode(ModeRemote)
		return nil
	}

	e.log.Warn("remote dependency service unavailable, trying local", "error", remoteErr.Error())

	localErr := e.local.HealthCheck(ctx)
	if localErr == nil {
		if e.Mode() != ModeLocal {
			metrics.RecordDegradationEvent(string(ModeRemote), string(ModeLocal))
		}
		e.setPrimaryMode(ModeLocal)
		return nil
	}

	return fmt.Errorf("both remote and local dependencies unavailable: %w", errors.Join(remoteErr, localErr))
}

func (e *FallbackExecutor) setPrimaryMode(mode ExecutionMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.primaryMode = mode
}

// isNetworkError reports whether err means the sidecar was not reached.
// Command failures reported by a reachable sidecar are not retried locally.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network error")
}
