package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/audio"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/tasks"
)

// AudioHandler serves the audio extraction routes.
type AudioHandler struct {
	svc     *audio.Service
	paths   *dependency.PathManager
	baseURL string
}

// NewAudioHandler creates an AudioHandler. baseURL prefixes every file_url.
func NewAudioHandler(svc *audio.Service, paths *dependency.PathManager, baseURL string) *AudioHandler {
	return &AudioHandler{svc: svc, paths: paths, baseURL: baseURL}
}

// FileResult is one produced speaker track.
type FileResult struct {
	FileURL    string `json:"file_url"`
	FileBase64 string `json:"file_base64"`
}

// TaskStatusResponse is the polling response.
type TaskStatusResponse struct {
	TaskID          string       `json:"task_id"`
	Status          tasks.Status `json:"status"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty"`
	Files           []FileResult `json:"files,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// TaskSummary is one entry of the task listing.
type TaskSummary struct {
	TaskID    string       `json:"task_id"`
	Status    tasks.Status `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	FileCount int          `json:"file_count"`
}

// Submit POST /api/extrator_audio/
func (h *AudioHandler) Submit(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequestResponse(c, "missing multipart field 'file'")
		return
	}

	f, err := fh.Open()
	if err != nil {
		internalErrorResponse(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	rec, err := h.svc.Accept(c.Request.Context(), fh.Filename, f)
	if err != nil {
		processingErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": rec.ID,
		"status":  rec.Status,
	})
}

// Status GET /api/extrator_audio/status/:task_id
func (h *AudioHandler) Status(c *gin.Context) {
	taskID := c.Param("task_id")

	rec, err := h.svc.Tasks().Get(taskID)
	if err != nil {
		notFoundResponse(c, "task")
		return
	}

	resp := TaskStatusResponse{TaskID: rec.ID, Status: rec.Status}
	switch rec.Status {
	case tasks.StatusCompleted:
		seconds := rec.Duration.Seconds()
		resp.DurationSeconds = &seconds
		resp.Files = make([]FileResult, 0, len(rec.Files))
		for _, name := range rec.Files {
			result, err := h.fileResult(name)
			if err != nil {
				internalErrorResponse(c, err)
				return
			}
			resp.Files = append(resp.Files, result)
		}
	case tasks.StatusFailed, tasks.StatusCancelled:
		resp.Error = rec.Error
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AudioHandler) fileResult(name string) (FileResult, error) {
	path, err := h.paths.ResolveOutputFile(name)
	if err != nil {
		return FileResult{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FileResult{}, fmt.Errorf("failed to read output file %s: %w", name, err)
	}
	return FileResult{
		FileURL:    fmt.Sprintf("%s/api/extrator_audio/files/%s", h.baseURL, url.PathEscape(name)),
		FileBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Cancel DELETE /api/extrator_audio/status/:task_id
func (h *AudioHandler) Cancel(c *gin.Context) {
	taskID := c.Param("task_id")

	err := h.svc.Cancel(taskID)
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		notFoundResponse(c, "task")
		return
	case errors.Is(err, tasks.ErrTerminalState):
		rec, getErr := h.svc.Tasks().Get(taskID)
		if getErr != nil {
			// 记录已被清理
			notFoundResponse(c, "task")
			return
		}
		errorResponseWithDetail(c, http.StatusConflict, "task already finished", gin.H{"status": rec.Status})
		return
	case err != nil:
		internalErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"status":  tasks.StatusCancelled,
	})
}

// List GET /api/extrator_audio/tasks
func (h *AudioHandler) List(c *gin.Context) {
	records := h.svc.Tasks().List()
	out := make([]TaskSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, TaskSummary{
			TaskID:    rec.ID,
			Status:    rec.Status,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
			FileCount: len(rec.Files),
		})
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out, "total": len(out)})
}

// File GET /api/extrator_audio/files/:name
func (h *AudioHandler) File(c *gin.Context) {
	path, err := h.paths.ResolveOutputFile(c.Param("name"))
	if err != nil {
		badRequestResponse(c, err.Error())
		return
	}
	if _, err := os.Stat(path); err != nil {
		notFoundResponse(c, "file")
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}
