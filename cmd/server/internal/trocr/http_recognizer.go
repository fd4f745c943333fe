package trocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/diegors10/projetoAPIs/pkg/logger"
)

// HTTPRecognizer calls a TrOCR inference service.
//
// API:
//   - GET  {url}/health   -> {"status": "ok", "model": "...", "loaded": true}
//   - POST {url}/predict  multipart field "image" (PNG) -> {"text": "..."}
type HTTPRecognizer struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Loaded bool   `json:"loaded"`
}

type predictResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPRecognizer creates a client for the service at baseURL.
// model, when set, must match the model the service reports.
func NewHTTPRecognizer(baseURL, model string, timeout time.Duration) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPRecognizer{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.OrDiscard().With("component", "trocr"),
	}
}

// Load checks that the service is up with the configured model in memory.
// The server calls it once at startup and exits when it fails.
func (r *HTTPRecognizer) Load(ctx context.Context) error {
	health, err := r.checkHealth(ctx)
	if err != nil {
		return err
	}
	r.log.Info("trocr model ready", "model", health.Model, "url", r.baseURL)
	return nil
}

// Ping runs the same check as Load without logging; /readiness calls it.
func (r *HTTPRecognizer) Ping(ctx context.Context) error {
	_, err := r.checkHealth(ctx)
	return err
}

func (r *HTTPRecognizer) checkHealth(ctx context.Context) (healthResponse, error) {
	var health healthResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return health, fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return health, fmt.Errorf("trocr service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return health, fmt.Errorf("trocr service unhealthy: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return health, fmt.Errorf("failed to parse health response: %w", err)
	}
	if !health.Loaded {
		return health, fmt.Errorf("trocr model not loaded (status %q)", health.Status)
	}
	if r.model != "" && health.Model != r.model {
		return health, fmt.Errorf("trocr service serves model %q, expected %q", health.Model, r.model)
	}
	return health, nil
}

// Recognize converts img to RGB and returns the service's text verbatim.
func (r *HTTPRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if err := png.Encode(part, ToRGB(img)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/predict", body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("trocr service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("trocr inference error: %s", result.Error)
	}

	r.log.Debug("trocr inference done", "duration_ms", time.Since(start).Milliseconds(), "chars", len(result.Text))
	return result.Text, nil
}

// Name returns the identifier of this implementation.
func (r *HTTPRecognizer) Name() string {
	return "trocr-http"
}
