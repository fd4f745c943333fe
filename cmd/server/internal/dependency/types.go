// Package dependency runs the external tools the API delegates to (ffmpeg, the
// pyannote diarization script, EasyOCR and Tesseract) either on the local host or
// through a command-runner sidecar.
package dependency

import "time"

// ExecutionMode specifies how commands should be executed.
type ExecutionMode string

const (
	// ModeLocal executes commands directly on the local system using exec.Command.
	ModeLocal ExecutionMode = "local"

	// ModeRemote executes commands by calling a command-runner service via HTTP.
	ModeRemote ExecutionMode = "remote"

	// ModeFallback tries remote execution first, then falls back to local on network failure.
	ModeFallback ExecutionMode = "fallback"
)

// Logical command names. They are resolved to binaries through ExecutorConfig.LocalBinaryPaths.
const (
	CommandFFmpeg    = "ffmpeg"
	CommandPython    = "python"
	CommandTesseract = "tesseract"
)

// Concurrency pools for work that runs in background tasks, kept apart from
// the pools request-path commands (audio extraction, plate OCR) use.
const (
	LimitPythonDiarize = "python:diarize"
	LimitPythonOCR     = "python:ocr"
	LimitFFmpegTracks  = "ffmpeg:tracks"
)

// CommandRequest encapsulates all information needed to execute a command.
type CommandRequest struct {
	// Command is the logical command name (e.g., "ffmpeg", "python").
	Command string `json:"command"`

	// Args are the command-line arguments.
	Args []string `json:"args"`

	// Env contains extra environment variables (e.g., {"HUGGINGFACE_TOKEN": "..."}).
	Env map[string]string `json:"env,omitempty"`

	// WorkingDir is the directory to execute the command in (default: current dir).
	WorkingDir string `json:"working_dir,omitempty"`

	// Timeout is the maximum execution duration (0 means the executor default).
	Timeout time.Duration `json:"timeout"`

	// LimitKey selects the ConcurrencyLimiter pool; empty means Command.
	LimitKey string `json:"limit_key,omitempty"`
}

func (r CommandRequest) limitKey() string {
	if r.LimitKey != "" {
		return r.LimitKey
	}
	return r.Command
}

// CommandResponse contains the result of a command execution.
type CommandResponse struct {
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration_ms"`
}

// ExecutorConfig defines the configuration for dependency execution.
type ExecutorConfig struct {
	// Mode specifies the execution strategy: "local", "remote", or "fallback".
	Mode ExecutionMode

	// ServiceURL is the HTTP endpoint of the command-runner sidecar.
	// Required for "remote" and "fallback" modes.
	ServiceURL string

	// DataDirs are the directories commands may read from or write to
	// (uploads and outputs). Paths outside them are rejected.
	DataDirs []string

	// LocalBinaryPaths maps command names to binaries
	// (e.g., {"ffmpeg": "/usr/local/bin/ffmpeg"}).
	LocalBinaryPaths map[string]string

	// DefaultTimeout applies when a request carries none.
	DefaultTimeout time.Duration

	// AllowedCommands is the command whitelist. Empty means allow all.
	AllowedCommands []string

	// MaxConcurrent bounds simultaneous executions per limiter key
	// (CommandRequest.LimitKey, or the command name), 0 means 1.
	MaxConcurrent map[string]int
}
