package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 统一配置结构
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Data       DataConfig       `yaml:"data"`
	Log        LogConfig        `yaml:"log"`
	Security   SecurityConfig   `yaml:"security"`
	Tools      ToolsConfig      `yaml:"tools"`
	Tasks      TasksConfig      `yaml:"tasks"`
	OCR        OCRConfig        `yaml:"ocr"`
	Dependency DependencyConfig `yaml:"dependency"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env           string `yaml:"env"` // dev, staging, production
	Port          string `yaml:"port"`
	PublicBaseURL string `yaml:"public_base_url"`
	MaxUploadMB   int64  `yaml:"max_upload_mb"`
}

// DataConfig 数据目录配置
type DataConfig struct {
	UploadDir string `yaml:"upload_dir"`
	OutputDir string `yaml:"output_dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level        string `yaml:"level"`  // debug, info, warn, error
	Format       string `yaml:"format"` // console, json
	FilePath     string `yaml:"file_path"`
	AuditLogPath string `yaml:"audit_log_path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	HFToken            string   `yaml:"hf_token"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// ToolsConfig 外部工具路径
type ToolsConfig struct {
	FFmpegPath        string `yaml:"ffmpeg_path"`
	PythonPath        string `yaml:"python_path"`
	TesseractPath     string `yaml:"tesseract_path"`
	DiarizationScript string `yaml:"diarization_script"`
	EasyOCRScript     string `yaml:"easyocr_script"`
	DiarizationDevice string `yaml:"diarization_device"`
}

// TasksConfig 后台任务配置
type TasksConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// OCRConfig OCR 引擎配置
type OCRConfig struct {
	Engine        string        `yaml:"engine"` // easyocr, tesseract
	Languages     []string      `yaml:"languages"`
	TrOCRURL      string        `yaml:"trocr_url"`
	TrOCRModel    string        `yaml:"trocr_model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"` // 同步 OCR 读取的并发上限，与后台任务分开
}

// DependencyConfig 外部命令执行模式
type DependencyConfig struct {
	Mode       string `yaml:"mode"` // local, remote, fallback
	ServiceURL string `yaml:"service_url"`
}

// LoadConfig 从环境变量加载配置；若设置 CONFIG_FILE，则先读取 YAML 再由环境变量覆盖
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Env:           "dev",
			Port:          "5000",
			PublicBaseURL: "http://localhost:5000",
			MaxUploadMB:   500,
		},
		Data: DataConfig{
			UploadDir: "./data/uploads",
			OutputDir: "./data/outputs",
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "console",
			AuditLogPath: "./data/logs/commands_audit.log",
		},
		Security: SecurityConfig{
			CORSAllowedOrigins: []string{"*"},
		},
		Tools: ToolsConfig{
			FFmpegPath:        "ffmpeg",
			PythonPath:        "python3",
			TesseractPath:     "tesseract",
			DiarizationScript: "./scripts/pyannote_diarize.py",
			EasyOCRScript:     "./scripts/easyocr_read.py",
			DiarizationDevice: "cpu",
		},
		Tasks: TasksConfig{
			TTL:            6 * time.Hour,
			Timeout:        30 * time.Minute,
			MaxConcurrent:  2,
			SweepInterval:  5 * time.Minute,
			CommandTimeout: 10 * time.Minute,
		},
		OCR: OCRConfig{
			Engine:        "easyocr",
			Languages:     []string{"pt", "en"},
			TrOCRURL:      "http://localhost:8500",
			TrOCRModel:    "microsoft/trocr-base-printed",
			Timeout:       60 * time.Second,
			MaxConcurrent: 4,
		},
		Dependency: DependencyConfig{
			Mode: "local",
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Env = getEnv("ENV", cfg.Server.Env)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", cfg.Server.PublicBaseURL), "/")
	cfg.Server.MaxUploadMB = getEnvInt64("MAX_UPLOAD_MB", cfg.Server.MaxUploadMB)

	cfg.Data.UploadDir = getEnv("UPLOAD_DIR", cfg.Data.UploadDir)
	cfg.Data.OutputDir = getEnv("OUTPUT_DIR", cfg.Data.OutputDir)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.FilePath = getEnv("LOG_FILE", cfg.Log.FilePath)
	cfg.Log.AuditLogPath = getEnv("AUDIT_LOG_PATH", cfg.Log.AuditLogPath)

	cfg.Security.HFToken = getEnv("HF_TOKEN", cfg.Security.HFToken)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Security.CORSAllowedOrigins = parseStringList(v)
	}

	cfg.Tools.FFmpegPath = getEnv("FFMPEG_PATH", cfg.Tools.FFmpegPath)
	cfg.Tools.PythonPath = getEnv("PYTHON_PATH", cfg.Tools.PythonPath)
	cfg.Tools.TesseractPath = getEnv("TESSERACT_PATH", cfg.Tools.TesseractPath)
	cfg.Tools.DiarizationScript = getEnv("DIARIZATION_SCRIPT", cfg.Tools.DiarizationScript)
	cfg.Tools.EasyOCRScript = getEnv("EASYOCR_SCRIPT", cfg.Tools.EasyOCRScript)
	cfg.Tools.DiarizationDevice = getEnv("DIARIZATION_DEVICE", cfg.Tools.DiarizationDevice)

	cfg.Tasks.TTL = getEnvDuration("TASK_TTL", cfg.Tasks.TTL)
	cfg.Tasks.Timeout = getEnvDuration("TASK_TIMEOUT", cfg.Tasks.Timeout)
	cfg.Tasks.MaxConcurrent = int(getEnvInt64("MAX_CONCURRENT_TASKS", int64(cfg.Tasks.MaxConcurrent)))
	cfg.Tasks.SweepInterval = getEnvDuration("TASK_SWEEP_INTERVAL", cfg.Tasks.SweepInterval)
	cfg.Tasks.CommandTimeout = getEnvDuration("COMMAND_TIMEOUT", cfg.Tasks.CommandTimeout)

	cfg.OCR.Engine = strings.ToLower(getEnv("OCR_ENGINE", cfg.OCR.Engine))
	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		cfg.OCR.Languages = parseStringList(v)
	}
	cfg.OCR.TrOCRURL = strings.TrimRight(getEnv("TROCR_URL", cfg.OCR.TrOCRURL), "/")
	cfg.OCR.TrOCRModel = getEnv("TROCR_MODEL", cfg.OCR.TrOCRModel)
	cfg.OCR.Timeout = getEnvDuration("OCR_TIMEOUT", cfg.OCR.Timeout)
	cfg.OCR.MaxConcurrent = int(getEnvInt64("OCR_MAX_CONCURRENT", int64(cfg.OCR.MaxConcurrent)))

	cfg.Dependency.Mode = strings.ToLower(getEnv("DEPENDENCY_MODE", cfg.Dependency.Mode))
	cfg.Dependency.ServiceURL = strings.TrimRight(getEnv("DEPS_SERVICE_URL", cfg.Dependency.ServiceURL), "/")
}

// ValidateConfig 验证配置的有效性，一次性返回全部错误
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. Hugging Face token 是必需的（说话人分离模型需要）
	if cfg.Security.HFToken == "" {
		errors = append(errors, "HF_TOKEN is required")
	}

	// 2. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 3. 日志
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 4. 环境
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 5. 目录与工具
	if cfg.Data.UploadDir == "" {
		errors = append(errors, "UPLOAD_DIR cannot be empty")
	}
	if cfg.Data.OutputDir == "" {
		errors = append(errors, "OUTPUT_DIR cannot be empty")
	}
	if cfg.Tools.FFmpegPath == "" {
		errors = append(errors, "FFMPEG_PATH cannot be empty")
	}
	if cfg.Tools.PythonPath == "" {
		errors = append(errors, "PYTHON_PATH cannot be empty")
	}
	if cfg.Server.MaxUploadMB <= 0 {
		errors = append(errors, "MAX_UPLOAD_MB must be greater than 0")
	}

	// 6. 任务
	if cfg.Tasks.TTL <= 0 {
		errors = append(errors, "TASK_TTL must be a positive duration")
	}
	if cfg.Tasks.Timeout <= 0 {
		errors = append(errors, "TASK_TIMEOUT must be a positive duration")
	}
	if cfg.Tasks.MaxConcurrent <= 0 {
		errors = append(errors, "MAX_CONCURRENT_TASKS must be greater than 0")
	}

	// 7. OCR
	switch cfg.OCR.Engine {
	case "easyocr":
		if cfg.Tools.EasyOCRScript == "" {
			errors = append(errors, "EASYOCR_SCRIPT is required when OCR_ENGINE=easyocr")
		}
	case "tesseract":
		if cfg.Tools.TesseractPath == "" {
			errors = append(errors, "TESSERACT_PATH is required when OCR_ENGINE=tesseract")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid OCR_ENGINE: %s (must be: easyocr, tesseract)", cfg.OCR.Engine))
	}
	if cfg.OCR.MaxConcurrent <= 0 {
		errors = append(errors, "OCR_MAX_CONCURRENT must be greater than 0")
	}
	if cfg.OCR.TrOCRURL == "" {
		errors = append(errors, "TROCR_URL cannot be empty")
	}

	// 8. 依赖执行模式
	switch cfg.Dependency.Mode {
	case "local":
	case "remote", "fallback":
		if cfg.Dependency.ServiceURL == "" {
			errors = append(errors, fmt.Sprintf("DEPS_SERVICE_URL is required when DEPENDENCY_MODE=%s", cfg.Dependency.Mode))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid DEPENDENCY_MODE: %s (must be: local, remote, fallback)", cfg.Dependency.Mode))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig 打印配置（脱敏）
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Public URL: %s
  Data Directories:
    - Uploads: %s
    - Outputs: %s
  Tools:
    - ffmpeg: %s
    - python: %s
    - diarization script: %s
  Tasks:
    - TTL: %s
    - Timeout: %s
    - Max Concurrent: %d
  OCR:
    - Engine: %s
    - TrOCR URL: %s
  Dependency Mode: %s
  Security:
    - HF Token: %s
    - CORS Origins: %v`,
		c.Server.Env,
		c.Server.Port,
		c.Server.PublicBaseURL,
		c.Data.UploadDir,
		c.Data.OutputDir,
		c.Tools.FFmpegPath,
		c.Tools.PythonPath,
		c.Tools.DiarizationScript,
		c.Tasks.TTL,
		c.Tasks.Timeout,
		c.Tasks.MaxConcurrent,
		c.OCR.Engine,
		c.OCR.TrOCRURL,
		c.Dependency.Mode,
		maskSecret(c.Security.HFToken),
		c.Security.CORSAllowedOrigins,
	)
}

// 辅助函数

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		// 非法值置零，交给 ValidateConfig 报错
		return 0
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		return 0
	}
	return defaultValue
}

// parseStringList 解析逗号分隔的字符串列表
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
