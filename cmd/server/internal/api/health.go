package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// HealthCheckResponse represents the response from the health check endpoint
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
	Env       string    `json:"env"`
}

// ReadinessCheckResponse represents the response from the readiness check endpoint
type ReadinessCheckResponse struct {
	Ready     bool             `json:"ready"`
	Checks    []ReadinessCheck `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// ReadinessCheck represents a single readiness check
type ReadinessCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok" or "fail"
	Error  string `json:"error,omitempty"`
}

// Probe is one named readiness condition.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	service   string
	version   string
	env       string
	startTime time.Time
	probes    []Probe
	timeout   time.Duration
}

// NewHealthHandler creates a HealthHandler running probes on /readiness.
func NewHealthHandler(service, version, env string, probes ...Probe) *HealthHandler {
	return &HealthHandler{
		service:   service,
		version:   version,
		env:       env,
		startTime: time.Now(),
		probes:    probes,
		timeout:   5 * time.Second,
	}
}

// Health GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthCheckResponse{
		Status:    "healthy",
		Service:   h.service,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
		Env:       h.env,
	})
}

// Readiness GET /readiness
// All probes run concurrently; the service is ready only when every probe passes.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := make([]ReadinessCheck, len(h.probes))
	var g errgroup.Group
	for i, p := range h.probes {
		i, p := i, p
		g.Go(func() error {
			checks[i] = ReadinessCheck{Name: p.Name, Status: "ok"}
			if err := p.Check(ctx); err != nil {
				checks[i].Status = "fail"
				checks[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, chk := range checks {
		if chk.Status != "ok" {
			ready = false
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ReadinessCheckResponse{
		Ready:     ready,
		Checks:    checks,
		Timestamp: time.Now(),
	})
}

// DirProbe checks that dir exists and is a directory.
func DirProbe(name, dir string) Probe {
	return Probe{Name: name, Check: func(ctx context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}}
}

// DiskSpaceProbe checks that the file system holding dir has at least minFreeMB available.
func DiskSpaceProbe(name, dir string, minFreeMB uint64) Probe {
	return Probe{Name: name, Check: func(ctx context.Context) error {
		var st unix.Statfs_t
		if err := unix.Statfs(dir, &st); err != nil {
			return fmt.Errorf("statfs %s: %w", dir, err)
		}
		freeMB := st.Bavail * uint64(st.Bsize) / (1024 * 1024)
		if freeMB < minFreeMB {
			return fmt.Errorf("only %d MB free on %s (minimum %d MB)", freeMB, dir, minFreeMB)
		}
		return nil
	}}
}
