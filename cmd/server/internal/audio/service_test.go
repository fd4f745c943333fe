package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/apperr"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/tasks"
)

// fakeTools writes small placeholder files instead of running ffmpeg and pyannote.
type fakeTools struct {
	mu sync.Mutex

	extractErr  error
	turns       []dependency.SpeakerTurn
	diarizeErr  error
	failSpeaker string
	block       chan struct{}
	// trackWritten/trackGate hold a slice after its file is on disk.
	trackWritten chan struct{}
	trackGate    chan struct{}

	extractCalls int
	tracks       []string
}

func (f *fakeTools) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	f.mu.Lock()
	f.extractCalls++
	f.mu.Unlock()
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(audioPath, []byte("mp3"), 0644)
}

func (f *fakeTools) RunDiarization(ctx context.Context, audioPath string, opts dependency.DiarizationOptions) ([]dependency.SpeakerTurn, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.turns, f.diarizeErr
}

func (f *fakeTools) ExtractSpeakerTrack(ctx context.Context, audioPath string, spans []dependency.TimeSpan, outputPath string) error {
	if f.failSpeaker != "" && strings.Contains(outputPath, f.failSpeaker) {
		return errors.New("exit code 1: Invalid argument")
	}
	f.mu.Lock()
	f.tracks = append(f.tracks, outputPath)
	f.mu.Unlock()
	if err := os.WriteFile(outputPath, []byte("track"), 0644); err != nil {
		return err
	}
	if f.trackGate != nil {
		f.trackWritten <- struct{}{}
		<-f.trackGate
	}
	return nil
}

func newTestService(t *testing.T, tools *fakeTools) (*Service, *dependency.PathManager) {
	t.Helper()
	dir := t.TempDir()
	paths := dependency.NewPathManager(filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs"))
	require.NoError(t, paths.EnsureDirs())

	runner := tasks.NewRunner(tasks.NewStore(time.Hour), 2, time.Minute)
	svc := NewService(tools, paths, runner, dependency.DiarizationOptions{Script: "d.py"})
	svc.newID = func() string { return "task-1" }
	return svc, paths
}

func twoSpeakers() []dependency.SpeakerTurn {
	return []dependency.SpeakerTurn{
		{Start: 0, End: 2.5, Speaker: "SPEAKER_00"},
		{Start: 2.5, End: 6, Speaker: "SPEAKER_01"},
		{Start: 6, End: 10, Speaker: "SPEAKER_00"},
	}
}

func TestService_AcceptCompletesWithOneFilePerSpeaker(t *testing.T) {
	tools := &fakeTools{turns: twoSpeakers()}
	svc, paths := newTestService(t, tools)

	rec, err := svc.Accept(context.Background(), "reuniao.MP4", strings.NewReader("video-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "task-1", rec.ID)
	assert.Equal(t, tasks.StatusProcessing, rec.Status)

	stored, err := os.ReadFile(paths.UploadPath("task-1", "mp4"))
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(stored))

	svc.runner.Wait()

	got, err := svc.Tasks().Get("task-1")
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusCompleted, got.Status)
	assert.Equal(t, []string{"task-1_SPEAKER_00.mp3", "task-1_SPEAKER_01.mp3"}, got.Files)
	for _, name := range got.Files {
		assert.FileExists(t, filepath.Join(paths.OutputDir(), name))
	}
}

func TestService_AcceptRejectsExtensionBeforeWriting(t *testing.T) {
	for _, name := range []string{"clip.txt", "clip.webm", "clip", "mp4"} {
		t.Run(name, func(t *testing.T) {
			tools := &fakeTools{}
			svc, paths := newTestService(t, tools)

			_, err := svc.Accept(context.Background(), name, strings.NewReader("x"))
			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.UNSUPPORTED_FORMAT))
			assert.Zero(t, tools.extractCalls)

			entries, _ := os.ReadDir(paths.UploadDir())
			assert.Empty(t, entries)
			assert.Empty(t, svc.Tasks().List())
		})
	}
}

func TestService_AcceptAllowedExtensions(t *testing.T) {
	for _, name := range []string{"a.mp4", "b.MKV", "c.avi", "d.Mov"} {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(t, &fakeTools{})
			_, err := svc.Accept(context.Background(), name, strings.NewReader("x"))
			require.NoError(t, err)
			svc.runner.Wait()
		})
	}
}

func TestService_ExtractionFailureIsSynchronous(t *testing.T) {
	tools := &fakeTools{extractErr: errors.New("moov atom not found")}
	svc, paths := newTestService(t, tools)

	_, err := svc.Accept(context.Background(), "clip.mp4", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.FFMPEG_FAILED))
	assert.Contains(t, err.Error(), "moov atom not found")

	_, err = svc.Tasks().Get("task-1")
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound, "no task is created when extraction fails")
	assert.NoFileExists(t, paths.UploadPath("task-1", "mp4"))
}

func TestService_DiarizationFailureMarksTaskFailed(t *testing.T) {
	tools := &fakeTools{diarizeErr: errors.New("401 gated model")}
	svc, _ := newTestService(t, tools)

	_, err := svc.Accept(context.Background(), "clip.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	svc.runner.Wait()

	got, _ := svc.Tasks().Get("task-1")
	assert.Equal(t, tasks.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "PYANNOTE_FAILED")
	assert.Contains(t, got.Error, "401 gated model")
}

func TestService_NoPartialResults(t *testing.T) {
	tools := &fakeTools{turns: twoSpeakers(), failSpeaker: "SPEAKER_01"}
	svc, paths := newTestService(t, tools)

	_, err := svc.Accept(context.Background(), "clip.mp4", strings.NewReader("x"))
	require.NoError(t, err)
	svc.runner.Wait()

	got, _ := svc.Tasks().Get("task-1")
	assert.Equal(t, tasks.StatusFailed, got.Status)
	assert.Empty(t, got.Files)
	assert.NoFileExists(t, paths.SpeakerTrackPath("task-1", "SPEAKER_00"), "already written tracks are removed")
}

func TestService_CancelStopsSegmentation(t *testing.T) {
	tools := &fakeTools{turns: twoSpeakers(), block: make(chan struct{})}
	svc, _ := newTestService(t, tools)

	_, err := svc.Accept(context.Background(), "clip.mp4", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel("task-1"))
	svc.runner.Wait()

	got, _ := svc.Tasks().Get("task-1")
	assert.Equal(t, tasks.StatusCancelled, got.Status)
	assert.Empty(t, tools.tracks)
	assert.ErrorIs(t, svc.Cancel("task-1"), tasks.ErrTerminalState)
}

func TestService_CancelDuringLastSliceRemovesTracks(t *testing.T) {
	tools := &fakeTools{
		turns:        []dependency.SpeakerTurn{{Start: 0, End: 4, Speaker: "SPEAKER_00"}},
		trackWritten: make(chan struct{}, 1),
		trackGate:    make(chan struct{}),
	}
	svc, paths := newTestService(t, tools)

	_, err := svc.Accept(context.Background(), "clip.mp4", strings.NewReader("x"))
	require.NoError(t, err)

	<-tools.trackWritten
	track := filepath.Join(paths.OutputDir(), "task-1_SPEAKER_00.mp3")
	require.FileExists(t, track)

	require.NoError(t, svc.Cancel("task-1"))
	close(tools.trackGate)
	svc.runner.Wait()

	got, _ := svc.Tasks().Get("task-1")
	assert.Equal(t, tasks.StatusCancelled, got.Status)
	assert.Empty(t, got.Files)
	assert.NoFileExists(t, track)
}

func TestService_DiscardTracksSkipsForeignNames(t *testing.T) {
	svc, paths := newTestService(t, &fakeTools{})
	kept := filepath.Join(paths.UploadDir(), "keep.mp3")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0644))

	svc.discardTracks("task-1")([]string{"../uploads/keep.mp3", "missing.mp3"})

	assert.FileExists(t, kept)
}

func TestService_NoSpeakersCompletesEmpty(t *testing.T) {
	svc, _ := newTestService(t, &fakeTools{})

	_, err := svc.Accept(context.Background(), "silence.mov", strings.NewReader("x"))
	require.NoError(t, err)
	svc.runner.Wait()

	got, _ := svc.Tasks().Get("task-1")
	assert.Equal(t, tasks.StatusCompleted, got.Status)
	assert.Empty(t, got.Files)
}

func TestExtensionOf(t *testing.T) {
	assert.Equal(t, "mp4", ExtensionOf("a.b.MP4"))
	assert.Equal(t, "", ExtensionOf("noext"))
}
