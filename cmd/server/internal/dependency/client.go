package dependency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/diegors10/projetoAPIs/pkg/logger"
	"github.com/diegors10/projetoAPIs/pkg/metrics"
)

// DependencyClient is the facade the audio and plate services use to reach
// external tools without knowing whether they run locally or in the sidecar.
//
// It encapsulates:
//   - Command construction
//   - Security validation
//   - Per-command concurrency limits
//   - Audit logging and metrics
type DependencyClient struct {
	executor DependencyExecutor
	config   ExecutorConfig
	limiter  *ConcurrencyLimiter
	audit    *AuditLogger
	log      *slog.Logger
}

// NewClient creates a DependencyClient whose executor is selected by config.Mode.
// audit may be nil.
func NewClient(config ExecutorConfig, audit *AuditLogger) (*DependencyClient, error) {
	var executor DependencyExecutor

	switch config.Mode {
	case ModeLocal:
		executor = NewLocalExecutor(config)
	case ModeRemote:
		executor = NewRemoteExecutor(config)
	case ModeFallback:
		executor = NewFallbackExecutor(config)
	default:
		return nil, fmt.Errorf("invalid execution mode: %s (must be 'local', 'remote', or 'fallback')", config.Mode)
	}

	return newClientWithExecutor(executor, config, audit), nil
}

func newClientWithExecutor(executor DependencyExecutor, config ExecutorConfig, audit *AuditLogger) *DependencyClient {
	return &DependencyClient{
		executor: executor,
		config:   config,
		limiter:  NewConcurrencyLimiter(config.MaxConcurrent),
		audit:    audit,
		log:      logger.OrDiscard().With("component", "dependency-client"),
	}
}

// activeMode reports the mode used for metrics; fallback executors report their current mode.
func (c *DependencyClient) activeMode() ExecutionMode {
	if fe, ok := c.executor.(*FallbackExecutor); ok {
		return fe.Mode()
	}
	return c.config.Mode
}

// run validates, executes and accounts one command. A non-zero exit code is an error.
func (c *DependencyClient) run(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	if err := ValidateCommandRequest(req, c.config); err != nil {
		c.audit.LogRejection(req, err.Error())
		return CommandResponse{}, fmt.Errorf("command validation failed: %w", err)
	}

	if err := c.limiter.Acquire(ctx, req.limitKey()); err != nil {
		return CommandResponse{}, err
	}
	defer c.limiter.Release(req.limitKey())

	mode := c.activeMode()
	start := time.Now()
	resp, err := c.executor.ExecuteCommand(ctx, req)
	elapsed := time.Since(start)

	c.audit.LogExecution(req, resp, err, mode)
	metrics.RecordCommandExecution(req.Command, string(mode), executionStatus(resp, err))
	metrics.RecordCommandDuration(req.Command, string(mode), elapsed.Seconds())

	if err != nil {
		if resp.ExitCode > 0 {
			return resp, fmt.Errorf("exit code %d: %s", resp.ExitCode, lastLines(resp.Stderr, 5))
		}
		return resp, err
	}
	if !resp.Success || resp.ExitCode != 0 {
		return resp, fmt.Errorf("exit code %d: %s", resp.ExitCode, lastLines(resp.Stderr, 5))
	}
	return resp, nil
}

func executionStatus(resp CommandResponse, err error) string {
	if err == nil && resp.Success {
		return "success"
	}
	if err != nil && strings.Contains(err.Error(), "timeout") {
		return "timeout"
	}
	return "failed"
}

// lastLines keeps the tail of tool stderr; ffmpeg prints its banner first and the error last.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// ExtractAudio pulls the audio stream of videoPath into an MP3 at audioPath
// (libmp3lame, 192 kbit/s, video dropped).
//
// Example:
//
//	err := client.ExtractAudio(ctx, "/data/uploads/3f2a.mp4", "/data/outputs/3f2a.mp3")
func (c *DependencyClient) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	req := CommandRequest{
		Command: CommandFFmpeg,
		Args: []string{
			"-y",
			"-i", videoPath,
			"-vn",
			"-acodec", "libmp3lame",
			"-b:a", "192k",
			"-f", "mp3",
			audioPath,
		},
		Timeout: c.config.DefaultTimeout,
	}

	if _, err := c.run(ctx, req); err != nil {
		return fmt.Errorf("audio extraction failed: %w", err)
	}
	return nil
}

// DiarizationOptions contains the parameters of RunDiarization.
type DiarizationOptions struct {
	// Script is the pyannote wrapper script path.
	Script string

	// Device is "cpu" or "cuda". Default: "cpu".
	Device string

	// HFToken is the Hugging Face access token for the gated pyannote model.
	HFToken string

	// NumSpeakers is the expected number of speakers (0 means auto-detect).
	NumSpeakers int

	// Timeout overrides the executor default.
	Timeout time.Duration
}

// SpeakerTurn is one diarized interval: speaker talks from Start to End seconds.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// RunDiarization runs the pyannote script on audioPath and returns its turns
// in the order the model emitted them.
//
// The script prints JSON on stdout, either {"segments": [...]} or a bare array
// of {"start", "end", "speaker"} objects.
func (c *DependencyClient) RunDiarization(ctx context.Context, audioPath string, opts DiarizationOptions) ([]SpeakerTurn, error) {
	if opts.Script == "" {
		return nil, errors.New("diarization script not configured")
	}
	if opts.Device == "" {
		opts.Device = "cpu"
	}
	if opts.Timeout == 0 {
		opts.Timeout = c.config.DefaultTimeout
	}

	args := []string{opts.Script, "--input", audioPath, "--device", opts.Device}
	if opts.NumSpeakers > 0 {
		args = append(args, "--num-speakers", strconv.Itoa(opts.NumSpeakers))
	}

	env := map[string]string{}
	if opts.HFToken != "" {
		env["HUGGINGFACE_TOKEN"] = opts.HFToken
	}

	c.log.Info("starting speaker diarization", "audio_path", audioPath, "device", opts.Device, "num_speakers", opts.NumSpeakers)

	resp, err := c.run(ctx, CommandRequest{
		Command:  CommandPython,
		Args:     args,
		Env:      env,
		Timeout:  opts.Timeout,
		LimitKey: LimitPythonDiarize,
	})
	if err != nil {
		return nil, fmt.Errorf("speaker diarization failed: %w", err)
	}

	turns, err := parseTurns([]byte(resp.Stdout))
	if err != nil {
		return nil, fmt.Errorf("invalid diarization output: %w", err)
	}

	c.log.Info("speaker diarization completed", "audio_path", audioPath, "turns", len(turns))
	return turns, nil
}

func parseTurns(data []byte) ([]SpeakerTurn, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("empty output")
	}

	if strings.HasPrefix(trimmed, "[") {
		var turns []SpeakerTurn
		if err := json.Unmarshal([]byte(trimmed), &turns); err != nil {
			return nil, err
		}
		return turns, nil
	}

	var wrapped struct {
		Segments []SpeakerTurn `json:"segments"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Segments, nil
}

// TimeSpan is a [Start, End) interval in seconds.
type TimeSpan struct {
	Start float64
	End   float64
}

// ExtractSpeakerTrack concatenates the given spans of audioPath, in order, into
// a single MP3 at outputPath using one ffmpeg atrim/concat filter graph.
func (c *DependencyClient) ExtractSpeakerTrack(ctx context.Context, audioPath string, spans []TimeSpan, outputPath string) error {
	if len(spans) == 0 {
		return errors.New("no spans to extract")
	}

	req := CommandRequest{
		Command: CommandFFmpeg,
		Args: []string{
			"-y",
			"-i", audioPath,
			"-filter_complex", buildConcatFilter(spans),
			"-map", "[out]",
			"-acodec", "libmp3lame",
			"-b:a", "192k",
			outputPath,
		},
		Timeout:  c.config.DefaultTimeout,
		LimitKey: LimitFFmpegTracks,
	}

	if _, err := c.run(ctx, req); err != nil {
		return fmt.Errorf("speaker track extraction failed: %w", err)
	}
	return nil
}

// buildConcatFilter renders
//
//	[0:a]atrim=start=S0:end=E0,asetpts=PTS-STARTPTS[a0];...;[a0][a1]concat=n=2:v=0:a=1[out]
func buildConcatFilter(spans []TimeSpan) string {
	var b strings.Builder
	for i, s := range spans {
		fmt.Fprintf(&b, "[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS[a%d];",
			formatSeconds(s.Start), formatSeconds(s.End), i)
	}
	for i := range spans {
		fmt.Fprintf(&b, "[a%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[out]", len(spans))
	return b.String()
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// OCR engines supported by ReadText.
const (
	EngineEasyOCR   = "easyocr"
	EngineTesseract = "tesseract"
)

// OCROptions selects the text reader used by ReadText.
type OCROptions struct {
	// Engine is "easyocr" (default) or "tesseract".
	Engine string

	// Script is the EasyOCR wrapper script path.
	Script string

	// Languages are ISO 639-1 codes, e.g. ["pt", "en"].
	Languages []string

	Timeout time.Duration
}

// tesseractLang maps ISO 639-1 codes to Tesseract traineddata names.
var tesseractLang = map[string]string{
	"pt": "por",
	"en": "eng",
	"es": "spa",
}

// ReadText detects and recognizes every text region of imagePath and returns
// the recognized strings in reading order. An image without text yields an empty slice.
func (c *DependencyClient) ReadText(ctx context.Context, imagePath string, opts OCROptions) ([]string, error) {
	if opts.Timeout == 0 {
		opts.Timeout = c.config.DefaultTimeout
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"pt", "en"}
	}

	switch opts.Engine {
	case "", EngineEasyOCR:
		return c.readTextEasyOCR(ctx, imagePath, opts)
	case EngineTesseract:
		return c.readTextTesseract(ctx, imagePath, opts)
	default:
		return nil, fmt.Errorf("unknown OCR engine: %s", opts.Engine)
	}
}

func (c *DependencyClient) readTextEasyOCR(ctx context.Context, imagePath string, opts OCROptions) ([]string, error) {
	if opts.Script == "" {
		return nil, errors.New("easyocr script not configured")
	}

	resp, err := c.run(ctx, CommandRequest{
		Command:  CommandPython,
		Args:     []string{opts.Script, "--image", imagePath, "--langs", strings.Join(opts.Languages, ",")},
		Timeout:  opts.Timeout,
		LimitKey: LimitPythonOCR,
	})
	if err != nil {
		return nil, fmt.Errorf("easyocr failed: %w", err)
	}

	out := strings.TrimSpace(resp.Stdout)
	if out == "" {
		return []string{}, nil
	}
	var texts []string
	if err := json.Unmarshal([]byte(out), &texts); err != nil {
		return nil, fmt.Errorf("invalid easyocr output: %w", err)
	}
	return texts, nil
}

func (c *DependencyClient) readTextTesseract(ctx context.Context, imagePath string, opts OCROptions) ([]string, error) {
	langs := make([]string, 0, len(opts.Languages))
	for _, l := range opts.Languages {
		if t, ok := tesseractLang[l]; ok {
			langs = append(langs, t)
		} else {
			langs = append(langs, l)
		}
	}

	// --psm 7: treat the image as a single text line, which is what a plate is.
	resp, err := c.run(ctx, CommandRequest{
		Command: CommandTesseract,
		Args:    []string{imagePath, "stdout", "--psm", "7", "-l", strings.Join(langs, "+")},
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w", err)
	}

	texts := []string{}
	for _, line := range strings.Split(resp.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			texts = append(texts, line)
		}
	}
	return texts, nil
}

// HealthCheck delegates to the executor.
func (c *DependencyClient) HealthCheck(ctx context.Context) error {
	return c.executor.HealthCheck(ctx)
}

// Config returns the executor configuration (read-only access).
func (c *DependencyClient) Config() ExecutorConfig {
	return c.config
}
