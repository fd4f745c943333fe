package dependency

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PathManager builds and validates file paths of the flat data layout:
//
//	{uploads}/{task_id}.{ext}            uploaded video
//	{outputs}/{task_id}.mp3              extracted audio track
//	{outputs}/{task_id}_{speaker}.mp3    one track per speaker
//	{outputs}/plates/{id}.png            preprocessed plate image
type PathManager struct {
	uploadDir string
	outputDir string
}

// NewPathManager creates a new PathManager instance.
func NewPathManager(uploadDir, outputDir string) *PathManager {
	return &PathManager{uploadDir: uploadDir, outputDir: outputDir}
}

// UploadDir returns the directory of uploaded videos.
func (pm *PathManager) UploadDir() string { return pm.uploadDir }

// OutputDir returns the directory of produced files.
func (pm *PathManager) OutputDir() string { return pm.outputDir }

// Roots returns every directory commands are allowed to touch.
func (pm *PathManager) Roots() []string {
	return []string{pm.uploadDir, pm.outputDir}
}

// UploadPath returns the stored path of a task's video.
// Example: UploadPath("3f2a", "MP4") -> "{uploads}/3f2a.mp4"
func (pm *PathManager) UploadPath(taskID, ext string) string {
	return filepath.Join(pm.uploadDir, fmt.Sprintf("%s.%s", taskID, strings.ToLower(ext)))
}

// AudioPath returns the extracted audio track of a task.
func (pm *PathManager) AudioPath(taskID string) string {
	return filepath.Join(pm.outputDir, taskID+".mp3")
}

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SpeakerTrackPath returns the per-speaker output of a task.
// Example: SpeakerTrackPath("3f2a", "SPEAKER_00") -> "{outputs}/3f2a_SPEAKER_00.mp3"
func (pm *PathManager) SpeakerTrackPath(taskID, speaker string) string {
	label := unsafeLabelChars.ReplaceAllString(speaker, "_")
	if label == "" {
		label = "speaker"
	}
	return filepath.Join(pm.outputDir, fmt.Sprintf("%s_%s.mp3", taskID, label))
}

// PlateImagePath returns where a preprocessed plate image is written.
func (pm *PathManager) PlateImagePath(id string) string {
	return filepath.Join(pm.outputDir, "plates", id+".png")
}

// ResolveOutputFile maps a public file name (as used in download URLs) back to
// a path inside the output directory. Names with separators are rejected.
func (pm *PathManager) ResolveOutputFile(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	path := filepath.Join(pm.outputDir, name)
	if err := pm.ValidatePath(path); err != nil {
		return "", err
	}
	return path, nil
}

// ValidatePath checks that path lies inside the upload or output directory.
func (pm *PathManager) ValidatePath(path string) error {
	return validatePathIn(path, pm.Roots())
}

// EnsureDirs creates the upload, output and plate directories.
func (pm *PathManager) EnsureDirs() error {
	for _, dir := range []string{pm.uploadDir, pm.outputDir, filepath.Join(pm.outputDir, "plates")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func validatePathIn(path string, roots []string) error {
	if containsTraversal(path) {
		return fmt.Errorf("path contains dangerous characters '..'")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	inside := false
	for _, root := range roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if absPath == absRoot || strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
			inside = true
			break
		}
	}
	if !inside {
		return fmt.Errorf("path %s is outside data directories %v", path, roots)
	}

	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("symbolic links are not allowed")
	}
	return nil
}
