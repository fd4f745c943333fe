// Package plate recognizes Brazilian license plates: classical image
// preprocessing, an external text reader and a plate-format filter.
package plate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/apperr"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"
	"github.com/diegors10/projetoAPIs/pkg/logger"
	"github.com/diegors10/projetoAPIs/pkg/metrics"
)

var (
	// ErrInvalidImage means the upload could not be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrPlateNotFound means no recognized text matched a plate format.
	ErrPlateNotFound = errors.New("no plate recognized")
)

// TextReader reads every text region of an image file.
type TextReader interface {
	ReadText(ctx context.Context, imagePath string, opts dependency.OCROptions) ([]string, error)
}

// Recognizer runs the plate pipeline.
type Recognizer struct {
	reader TextReader
	paths  *dependency.PathManager
	opts   dependency.OCROptions
	newID  func() string
	log    *slog.Logger
}

// NewRecognizer creates a Recognizer using reader with opts for every request.
func NewRecognizer(reader TextReader, paths *dependency.PathManager, opts dependency.OCROptions) *Recognizer {
	return &Recognizer{
		reader: reader,
		paths:  paths,
		opts:   opts,
		newID:  uuid.NewString,
		log:    logger.OrDiscard().With("component", "plate-recognizer"),
	}
}

// Engine names the configured text reader.
func (r *Recognizer) Engine() string {
	if r.opts.Engine == "" {
		return dependency.EngineEasyOCR
	}
	return r.opts.Engine
}

// Recognize decodes data, preprocesses it and returns the first plate found.
func (r *Recognizer) Recognize(ctx context.Context, data []byte, enhanceContrast bool) (string, error) {
	engine := r.Engine()

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		metrics.RecordOCRRequest(engine, "bad_input")
		return "", apperr.NewInvalidImageError(fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}

	// Every request gets its own file so concurrent requests never read each other's image.
	id := r.newID()
	path := r.paths.PlateImagePath(id)
	if err := imaging.Save(Preprocess(img, enhanceContrast), path); err != nil {
		metrics.RecordOCRRequest(engine, "error")
		return "", apperr.NewStorageError("failed to write preprocessed image", err)
	}
	defer os.Remove(path)

	start := time.Now()
	texts, err := r.reader.ReadText(ctx, path, r.opts)
	if err != nil {
		metrics.RecordOCRRequest(engine, "error")
		logger.LogTaskEvent(r.log, "plate", "error", id, time.Since(start).Milliseconds(), string(apperr.OCR_FAILED))
		return "", apperr.NewOCRError(err)
	}
	logger.LogTaskEvent(r.log, "plate", "success", id, time.Since(start).Milliseconds(), "")

	plate, ok := ExtractLicensePlate(texts)
	if !ok {
		metrics.RecordOCRRequest(engine, "not_found")
		r.log.Debug("no plate among recognized texts", "request_id", id, "texts", texts)
		return "", ErrPlateNotFound
	}

	metrics.RecordOCRRequest(engine, "found")
	return plate, nil
}
