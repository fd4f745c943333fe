// Package audio accepts uploaded videos, extracts their audio track and splits
// it into one file per speaker in a background task.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/apperr"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/tasks"
	"github.com/diegors10/projetoAPIs/pkg/logger"
)

// AllowedExtensions are the accepted video containers (compared case-insensitively).
var AllowedExtensions = []string{"mp4", "mkv", "avi", "mov"}

// MediaTools is the subset of dependency.DependencyClient the service needs.
type MediaTools interface {
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
	RunDiarization(ctx context.Context, audioPath string, opts dependency.DiarizationOptions) ([]dependency.SpeakerTurn, error)
	ExtractSpeakerTrack(ctx context.Context, audioPath string, spans []dependency.TimeSpan, outputPath string) error
}

// Service runs the audio extraction flow.
type Service struct {
	tools       MediaTools
	paths       *dependency.PathManager
	runner      *tasks.Runner
	diarization dependency.DiarizationOptions
	newID       func() string
	log         *slog.Logger
}

// NewService creates a Service. opts is passed to every diarization run.
func NewService(tools MediaTools, paths *dependency.PathManager, runner *tasks.Runner, opts dependency.DiarizationOptions) *Service {
	return &Service{
		tools:       tools,
		paths:       paths,
		runner:      runner,
		diarization: opts,
		newID:       uuid.NewString,
		log:         logger.OrDiscard().With("component", "audio-service"),
	}
}

// Tasks returns the registry that status queries read from.
func (s *Service) Tasks() *tasks.Store {
	return s.runner.Store()
}

// Cancel stops a processing task.
func (s *Service) Cancel(taskID string) error {
	return s.runner.Cancel(taskID)
}

// ExtensionOf returns the lowercase extension of filename without the dot.
func ExtensionOf(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Accept stores the upload, extracts its audio synchronously and schedules
// speaker segmentation. Nothing is written when the extension is not allowed.
func (s *Service) Accept(ctx context.Context, filename string, body io.Reader) (tasks.Record, error) {
	ext := ExtensionOf(filename)
	if !slices.Contains(AllowedExtensions, ext) {
		return tasks.Record{}, apperr.NewUnsupportedFormatError(ext, AllowedExtensions)
	}

	taskID := s.newID()
	videoPath := s.paths.UploadPath(taskID, ext)
	audioPath := s.paths.AudioPath(taskID)
	log := s.log.With("task_id", taskID)

	if err := saveUpload(videoPath, body); err != nil {
		return tasks.Record{}, apperr.NewStorageError("failed to store upload", err)
	}

	start := time.Now()
	if err := s.tools.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		logger.LogTaskEvent(log, "extract", "error", taskID, time.Since(start).Milliseconds(), string(apperr.FFMPEG_FAILED))
		removeFiles(log, videoPath, audioPath)
		return tasks.Record{}, apperr.NewFFmpegError("audio extraction failed", err)
	}
	logger.LogTaskEvent(log, "extract", "success", taskID, time.Since(start).Milliseconds(), "")

	rec, err := s.runner.SubmitWithCleanup(taskID, s.segmentJob(taskID, audioPath), s.discardTracks(taskID))
	if err != nil {
		return tasks.Record{}, fmt.Errorf("failed to schedule task: %w", err)
	}
	return rec, nil
}

func saveUpload(path string, body io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// segmentJob diarizes audioPath and writes one track per speaker.
// Either every speaker file is written or none is left behind.
func (s *Service) segmentJob(taskID, audioPath string) tasks.Job {
	return func(ctx context.Context) ([]string, error) {
		log := s.log.With("task_id", taskID)

		start := time.Now()
		turns, err := s.tools.RunDiarization(ctx, audioPath, s.diarization)
		if err != nil {
			logger.LogTaskEvent(log, "diarize", "error", taskID, time.Since(start).Milliseconds(), string(apperr.PYANNOTE_FAILED))
			return nil, apperr.NewPyannoteError(err)
		}
		logger.LogTaskEvent(log, "diarize", "success", taskID, time.Since(start).Milliseconds(), "")

		groups := GroupBySpeaker(turns)
		files := make([]string, 0, len(groups))
		written := make([]string, 0, len(groups))

		for _, g := range groups {
			out := s.paths.SpeakerTrackPath(taskID, g.Speaker)
			sliceStart := time.Now()
			if err := s.tools.ExtractSpeakerTrack(ctx, audioPath, g.Spans, out); err != nil {
				logger.LogTaskEvent(log, "slice", "error", taskID, time.Since(sliceStart).Milliseconds(), string(apperr.FFMPEG_FAILED))
				removeFiles(log, append(written, out)...)
				return nil, apperr.NewFFmpegError(fmt.Sprintf("failed to write track for %s", g.Speaker), err)
			}
			written = append(written, out)
			files = append(files, filepath.Base(out))
		}

		log.Info("speaker segmentation completed", "speakers", len(files))
		return files, nil
	}
}

// discardTracks removes speaker tracks of a task whose result was dropped.
func (s *Service) discardTracks(taskID string) tasks.Cleanup {
	return func(files []string) {
		log := s.log.With("task_id", taskID)
		paths := make([]string, 0, len(files))
		for _, name := range files {
			path, err := s.paths.ResolveOutputFile(name)
			if err != nil {
				log.Warn("skipping unexpected output name", "name", name, "error", err)
				continue
			}
			paths = append(paths, path)
		}
		removeFiles(log, paths...)
	}
}

func removeFiles(log *slog.Logger, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove file", "path", p, "error", err)
		}
	}
}
