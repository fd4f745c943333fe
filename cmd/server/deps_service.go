package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/config"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/middleware"
	"github.com/diegors10/projetoAPIs/pkg/logger"
)

// runDepsService starts the command-runner sidecar used by DEPENDENCY_MODE=remote|fallback.
// It reads the same environment/CONFIG_FILE as the API server but only needs the
// tool paths, the data directories and the log settings.
func runDepsService(args []string) int {
	fs := flag.NewFlagSet("deps-service", flag.ContinueOnError)
	port := fs.Int("port", 8081, "HTTP server port")
	showVersion := fs.Bool("version", false, "Show version")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("deps-service v%s\n", serviceVersion)
		return 0
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		FilePath:    cfg.Log.FilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	log := logInstance.With("component", "deps-service")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	paths := dependency.NewPathManager(cfg.Data.UploadDir, cfg.Data.OutputDir)
	if err := paths.EnsureDirs(); err != nil {
		log.Error("failed to prepare data directories", "error", err)
		return 1
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	dependency.NewSidecarHandler(executorConfig(cfg, paths), dependency.NewAuditLogger(cfg.Log.AuditLogPath), serviceVersion).Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("deps-service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Error("deps-service failed", "error", err)
		return 1
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("deps-service shutdown error", "error", err)
	}
	log.Info("deps-service stopped")
	return 0
}
