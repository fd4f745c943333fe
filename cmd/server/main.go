package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/api"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/audio"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/config"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/middleware"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/plate"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/tasks"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/trocr"
	"github.com/diegors10/projetoAPIs/pkg/logger"
)

const (
	serviceName    = "media-ocr-api"
	serviceVersion = "1.0.0"
	minFreeDiskMB  = 512
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "deps-service" {
		os.Exit(runDepsService(os.Args[2:]))
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logEnv := cfg.Server.Env
	if cfg.Log.Format == "json" {
		logEnv = "prod"
	}
	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: logEnv,
		WithSource:  !cfg.IsProduction(),
		FilePath:    cfg.Log.FilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "web-server")

	// 缺少必需配置（如 HF_TOKEN）时拒绝启动
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)
	appLogger.Debug(cfg.PrintConfig())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	paths := dependency.NewPathManager(cfg.Data.UploadDir, cfg.Data.OutputDir)
	if err := paths.EnsureDirs(); err != nil {
		appLogger.Error("failed to prepare data directories", "error", err)
		os.Exit(1)
	}

	depClient, err := dependency.NewClient(executorConfig(cfg, paths), dependency.NewAuditLogger(cfg.Log.AuditLogPath))
	if err != nil {
		appLogger.Error("dependency client init failed", "error", err)
		os.Exit(1)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := depClient.HealthCheck(startupCtx); err != nil {
		// 外部工具缺失不阻止启动，/readiness 会报告失败
		appLogger.Warn("external tools not ready", "mode", cfg.Dependency.Mode, "error", err)
	}

	// TrOCR 模型加载失败直接退出
	trocrRecognizer := trocr.NewHTTPRecognizer(cfg.OCR.TrOCRURL, cfg.OCR.TrOCRModel, cfg.OCR.Timeout)
	if err := trocrRecognizer.Load(startupCtx); err != nil {
		cancelStartup()
		appLogger.Error("failed to load trocr model", "url", cfg.OCR.TrOCRURL, "model", cfg.OCR.TrOCRModel, "error", err)
		os.Exit(1)
	}
	cancelStartup()

	store := tasks.NewStore(cfg.Tasks.TTL)
	runner := tasks.NewRunner(store, cfg.Tasks.MaxConcurrent, cfg.Tasks.Timeout)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	store.StartJanitor(janitorCtx, cfg.Tasks.SweepInterval)

	audioSvc := audio.NewService(depClient, paths, runner, dependency.DiarizationOptions{
		Script:  cfg.Tools.DiarizationScript,
		Device:  cfg.Tools.DiarizationDevice,
		HFToken: cfg.Security.HFToken,
		Timeout: cfg.Tasks.Timeout,
	})
	plateRecognizer := plate.NewRecognizer(depClient, paths, dependency.OCROptions{
		Engine:    cfg.OCR.Engine,
		Script:    cfg.Tools.EasyOCRScript,
		Languages: cfg.OCR.Languages,
		Timeout:   cfg.OCR.Timeout,
	})

	maxUpload := cfg.Server.MaxUploadMB * 1024 * 1024

	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Security.CORSAllowedOrigins))
	r.Use(middleware.BodyLimit(maxUpload))

	api.RegisterHealthRoutes(r, api.NewHealthHandler(serviceName, serviceVersion, cfg.Server.Env,
		api.DirProbe("uploads_dir", paths.UploadDir()),
		api.DirProbe("outputs_dir", paths.OutputDir()),
		api.DiskSpaceProbe("disk_space", paths.OutputDir(), minFreeDiskMB),
		api.Probe{Name: "dependencies", Check: depClient.HealthCheck},
		api.Probe{Name: "trocr", Check: trocrRecognizer.Ping},
	))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.RegisterRoutes(r,
		api.NewAudioHandler(audioSvc, paths, cfg.Server.PublicBaseURL),
		api.NewPlateHandler(plateRecognizer, trocrRecognizer, maxUpload),
	)

	srv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
	}
	if err := runner.Shutdown(ctx); err != nil {
		appLogger.Error("background tasks did not stop in time", "error", err)
	}
	stopJanitor()
	appLogger.Info("server shutdown complete")
}

// executorConfig maps the tool settings onto the dependency layer; the API
// server and the deps-service sidecar share it.
func executorConfig(cfg *config.Config, paths *dependency.PathManager) dependency.ExecutorConfig {
	return dependency.ExecutorConfig{
		Mode:       dependency.ExecutionMode(cfg.Dependency.Mode),
		ServiceURL: cfg.Dependency.ServiceURL,
		DataDirs:   paths.Roots(),
		LocalBinaryPaths: map[string]string{
			dependency.CommandFFmpeg:    cfg.Tools.FFmpegPath,
			dependency.CommandPython:    cfg.Tools.PythonPath,
			dependency.CommandTesseract: cfg.Tools.TesseractPath,
		},
		DefaultTimeout:  cfg.Tasks.CommandTimeout,
		AllowedCommands: []string{dependency.CommandFFmpeg, dependency.CommandPython, dependency.CommandTesseract},
		MaxConcurrent: map[string]int{
			dependency.CommandFFmpeg:      4,
			dependency.LimitFFmpegTracks:  cfg.Tasks.MaxConcurrent,
			dependency.LimitPythonDiarize: cfg.Tasks.MaxConcurrent,
			dependency.LimitPythonOCR:     cfg.OCR.MaxConcurrent,
			dependency.CommandTesseract:   cfg.OCR.MaxConcurrent,
		},
	}
}
