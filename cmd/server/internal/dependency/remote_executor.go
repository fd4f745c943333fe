package dependency

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/diegors10/projetoAPIs/pkg/logger"
)

// RemoteExecutor executes commands through the command-runner sidecar
// (POST {ServiceURL}/api/v1/execute). Input and output files must live on a
// volume shared with the sidecar.
type RemoteExecutor struct {
	config     ExecutorConfig
	httpClient *http.Client
	log        *slog.Logger
}

// NewRemoteExecutor creates a new RemoteExecutor with the given configuration.
func NewRemoteExecutor(config ExecutorConfig) *RemoteExecutor {
	return &RemoteExecutor{
		config: config,
		httpClient: &http.Client{
			// slightly above the command timeout so the sidecar reports the timeout itself
			Timeout: config.DefaultTimeout + 10*time.Second,
		},
		log: logger.OrDiscard().With("component", "remote-executor"),
	}
}

// ExecuteCommand sends req to the sidecar and decodes its CommandResponse.
func (e *RemoteExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to serialize request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/execute", e.config.ServiceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	e.log.Debug("sending command", "url", url, "command", req.Command)

	start := time.Now()
	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to call dependency service (network error): %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to read response (network error): %w", err)
	}

	var resp CommandResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		e.log.Warn("unparseable sidecar response", "status", httpResp.StatusCode, "body", string(bodyBytes))
		return CommandResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("dependency service returned error (HTTP %d): %s", httpResp.StatusCode, resp.Stderr)
	}

	if resp.Duration == 0 {
		resp.Duration = time.Since(start)
	}
	return resp, nil
}

// HealthCheck verifies that the sidecar is reachable and healthy.
func (e *RemoteExecutor) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/health", e.config.ServiceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dependency service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dependency service unhealthy (HTTP %d)", resp.StatusCode)
	}
	return nil
}
