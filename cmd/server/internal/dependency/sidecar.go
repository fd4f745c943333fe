package dependency

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diegors10/projetoAPIs/pkg/logger"
	"github.com/diegors10/projetoAPIs/pkg/metrics"
)

// SidecarHandler serves the command-runner API consumed by RemoteExecutor:
//
//	POST /api/v1/execute  CommandRequest -> CommandResponse
//	GET  /api/v1/health
//
// It runs on the host that has ffmpeg, python and tesseract installed and
// shares the data volume with the API server.
type SidecarHandler struct {
	executor *LocalExecutor
	config   ExecutorConfig
	limiter  *ConcurrencyLimiter
	audit    *AuditLogger
	version  string
	log      *slog.Logger
}

// NewSidecarHandler creates the handler. config.Mode is ignored; commands always run locally.
func NewSidecarHandler(config ExecutorConfig, audit *AuditLogger, version string) *SidecarHandler {
	config.Mode = ModeLocal
	return &SidecarHandler{
		executor: NewLocalExecutor(config),
		config:   config,
		limiter:  NewConcurrencyLimiter(config.MaxConcurrent),
		audit:    audit,
		version:  version,
		log:      logger.OrDiscard().With("component", "deps-service"),
	}
}

// Register mounts the sidecar routes on r.
func (h *SidecarHandler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/execute", h.Execute)
	v1.GET("/health", h.Health)
}

// Execute validates the request, waits for a slot and runs the command.
// A non-zero exit code is reported as HTTP 500 with the CommandResponse body.
func (h *SidecarHandler) Execute(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "details": []string{err.Error()}})
		return
	}

	if err := ValidateCommandRequest(req, h.config); err != nil {
		h.audit.LogRejection(req, err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_arguments", "details": []string{err.Error()}})
		return
	}

	if err := h.limiter.Acquire(c.Request.Context(), req.limitKey()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_busy", "details": []string{err.Error()}})
		return
	}
	defer h.limiter.Release(req.limitKey())

	start := time.Now()
	resp, err := h.executor.ExecuteCommand(c.Request.Context(), req)
	h.audit.LogExecution(req, resp, err, ModeLocal)
	metrics.RecordCommandExecution(req.Command, "sidecar", executionStatus(resp, err))
	metrics.RecordCommandDuration(req.Command, "sidecar", time.Since(start).Seconds())

	if err != nil && resp.ExitCode <= 0 {
		h.log.Warn("command failed to run", "command", req.Command, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			status = 499
		}
		if resp.Stderr == "" {
			resp.Stderr = err.Error()
		}
		resp.Success = false
		c.JSON(status, resp)
		return
	}

	if resp.ExitCode != 0 {
		resp.Success = false
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	resp.Success = true
	c.JSON(http.StatusOK, resp)
}

// Health reports 503 while a configured binary is missing.
func (h *SidecarHandler) Health(c *gin.Context) {
	if err := h.executor.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "deps-service",
			"version": h.version,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "deps-service",
		"version": h.version,
	})
}
