package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MEDIACTL_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))

	root := &cobra.Command{Use: "mediactl", SilenceUsage: true, SilenceErrors: true}
	addGlobalFlags(root)
	root.AddCommand(newAudioCmd(), newPlateCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"--server-url", serverURL}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestAudioSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/extrator_audio/", r.URL.Path)
		fh, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			fh.Close()
		}
		w.Write([]byte(`{"task_id":"t-1","status":"processing"}`))
	}))
	defer server.Close()

	out, err := runCLI(t, server.URL, "audio", "submit", writeTempFile(t, "clip.mp4", "video"))
	require.NoError(t, err)
	assert.Contains(t, out, `"task_id":"t-1"`)
}

func TestAudioStatusWaitAndSave(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/extrator_audio/status/t-1", r.URL.Path)
		if calls.Add(1) < 2 {
			w.Write([]byte(`{"task_id":"t-1","status":"processing"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"task_id":          "t-1",
			"status":           "completed",
			"duration_seconds": 12.5,
			"files": []map[string]string{{
				"file_url":    "http://api/api/extrator_audio/files/t-1_SPEAKER_00.mp3",
				"file_base64": base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
			}},
		})
	}))
	defer server.Close()

	dir := t.TempDir()
	out, err := runCLI(t, server.URL, "audio", "status", "t-1", "--wait", "--interval", "1ms", "--save-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, out, "status: completed")
	assert.Contains(t, out, "took:   12.5s")

	data, err := os.ReadFile(filepath.Join(dir, "t-1_SPEAKER_00.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(data))
}

func TestAudioStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"task not found"}`))
	}))
	defer server.Close()

	_, err := runCLI(t, server.URL, "audio", "status", "nope")
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, "task not found", httpErr.Message)
}

func TestPlateRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ocr_placa/", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("enhance_contrast"))
		_, fh, err := r.FormFile("file")
		if assert.NoError(t, err) {
			assert.Equal(t, "image/png", fh.Header.Get("Content-Type"))
		}
		w.Write([]byte(`{"placa":"ABC-1234"}`))
	}))
	defer server.Close()

	out, err := runCLI(t, server.URL, "plate", "read", "--no-contrast", writeTempFile(t, "car.png", "png"))
	require.NoError(t, err)
	assert.Equal(t, "ABC-1234\n", out)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "server_url: http://media.internal:5000\noutput: json\n")
	t.Setenv("MEDIACTL_CONFIG", path)
	t.Setenv("MEDIACTL_SERVER_URL", "")

	cmd := &cobra.Command{}
	addGlobalFlags(cmd)
	cfg := LoadConfig(cmd)
	assert.Equal(t, "http://media.internal:5000", cfg.ServerURL)
	assert.Equal(t, "json", cfg.Output)
}
