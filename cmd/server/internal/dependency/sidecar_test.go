package dependency

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSidecarServer(t *testing.T, binaries map[string]string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := ExecutorConfig{
		LocalBinaryPaths: binaries,
		DefaultTimeout:   10 * time.Second,
		AllowedCommands:  []string{"sh"},
	}
	r := gin.New()
	NewSidecarHandler(cfg, nil, "test").Register(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func postExecute(t *testing.T, url string, req CommandRequest) (*http.Response, CommandResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpResp, err := http.Post(url+"/api/v1/execute", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()

	var resp CommandResponse
	_ = json.NewDecoder(httpResp.Body).Decode(&resp)
	return httpResp, resp
}

func TestSidecar_ExecuteSuccess(t *testing.T) {
	server := newSidecarServer(t, map[string]string{"sh": "/bin/sh"})

	httpResp, resp := postExecute(t, server.URL, CommandRequest{Command: "sh", Args: []string{"-c", "echo hi"}})
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.True(t, resp.Success)
	assert.Equal(t, "hi\n", resp.Stdout)
}

func TestSidecar_NonZeroExitIs500(t *testing.T) {
	server := newSidecarServer(t, map[string]string{"sh": "/bin/sh"})

	httpResp, resp := postExecute(t, server.URL, CommandRequest{Command: "sh", Args: []string{"-c", "echo bad >&2; exit 2"}})
	assert.Equal(t, http.StatusInternalServerError, httpResp.StatusCode)
	assert.False(t, resp.Success)
	assert.Equal(t, 2, resp.ExitCode)
	assert.Equal(t, "bad\n", resp.Stderr)
}

func TestSidecar_RejectsUnlistedCommand(t *testing.T) {
	server := newSidecarServer(t, map[string]string{"sh": "/bin/sh"})

	httpResp, _ := postExecute(t, server.URL, CommandRequest{Command: "rm", Args: []string{"-rf", "x"}})
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
}

func TestSidecar_RejectsMalformedJSON(t *testing.T) {
	server := newSidecarServer(t, map[string]string{"sh": "/bin/sh"})

	httpResp, err := http.Post(server.URL+"/api/v1/execute", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
}

func TestSidecar_Health(t *testing.T) {
	healthy := newSidecarServer(t, map[string]string{"sh": "/bin/sh"})
	resp, err := http.Get(healthy.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	broken := newSidecarServer(t, map[string]string{"sh": "/nonexistent/sh"})
	resp, err = http.Get(broken.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSidecar_RemoteExecutorRoundTrip(t *testing.T) {
	server := newSidecarServer(t, map[string]string{"sh": "/bin/sh"})
	remote := NewRemoteExecutor(ExecutorConfig{ServiceURL: server.URL, DefaultTimeout: 10 * time.Second})

	resp, err := remote.ExecuteCommand(context.Background(), CommandRequest{Command: "sh", Args: []string{"-c", "printf ok"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Stdout)
	require.NoError(t, remote.HealthCheck(context.Background()))

	resp, err = remote.ExecuteCommand(context.Background(), CommandRequest{Command: "sh", Args: []string{"-c", "exit 4"}})
	require.Error(t, err)
	assert.Equal(t, 4, resp.ExitCode)
}
