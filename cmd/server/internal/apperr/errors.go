// Package apperr defines the typed processing errors shared by the audio and OCR pipelines.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies which processing step failed.
type ErrorCode string

const (
	// UNSUPPORTED_FORMAT the uploaded container extension is not allowed
	UNSUPPORTED_FORMAT ErrorCode = "UNSUPPORTED_FORMAT"

	// INVALID_IMAGE the uploaded file is not a decodable image
	INVALID_IMAGE ErrorCode = "INVALID_IMAGE"

	// FFMPEG_FAILED audio extraction or slicing failed
	FFMPEG_FAILED ErrorCode = "FFMPEG_FAILED"

	// PYANNOTE_FAILED speaker diarization failed
	PYANNOTE_FAILED ErrorCode = "PYANNOTE_FAILED"

	// OCR_FAILED the plate text reader failed
	OCR_FAILED ErrorCode = "OCR_FAILED"

	// TROCR_FAILED the transformer OCR service failed
	TROCR_FAILED ErrorCode = "TROCR_FAILED"

	// TASK_TIMEOUT a background task exceeded its deadline
	TASK_TIMEOUT ErrorCode = "TASK_TIMEOUT"

	// STORAGE_FAILED reading or writing a data file failed
	STORAGE_FAILED ErrorCode = "STORAGE_FAILED"
)

// ProcessingError is a failure of one media or OCR step.
type ProcessingError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// New creates a ProcessingError.
func New(code ErrorCode, message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewUnsupportedFormatError rejects an upload by extension.
func NewUnsupportedFormatError(ext string, allowed []string) *ProcessingError {
	return New(UNSUPPORTED_FORMAT, fmt.Sprintf("unsupported file format %q, allowed: %v", ext, allowed), nil)
}

// NewInvalidImageError wraps an image decode failure.
func NewInvalidImageError(cause error) *ProcessingError {
	return New(INVALID_IMAGE, "invalid or unsupported image", cause)
}

// NewFFmpegError wraps an ffmpeg failure.
func NewFFmpegError(message string, cause error) *ProcessingError {
	return New(FFMPEG_FAILED, message, cause)
}

// NewPyannoteError wraps a diarization failure.
func NewPyannoteError(cause error) *ProcessingError {
	return New(PYANNOTE_FAILED, "speaker diarization failed", cause)
}

// NewOCRError wraps a text reader failure.
func NewOCRError(cause error) *ProcessingError {
	return New(OCR_FAILED, "text recognition failed", cause)
}

// NewTrOCRError wraps a transformer OCR failure.
func NewTrOCRError(cause error) *ProcessingError {
	return New(TROCR_FAILED, "transformer OCR inference failed", cause)
}

// NewStorageError wraps a file system failure.
func NewStorageError(message string, cause error) *ProcessingError {
	return New(STORAGE_FAILED, message, cause)
}

// GetErrorCode extracts the code of a ProcessingError anywhere in err's chain.
func GetErrorCode(err error) ErrorCode {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
