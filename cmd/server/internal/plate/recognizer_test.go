package plate

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diegors10/projetoAPIs/cmd/server/internal/apperr"
	"github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"
)

type fakeReader struct {
	texts []string
	err   error

	paths   []string
	existed bool
	opts    dependency.OCROptions
}

func (f *fakeReader) ReadText(ctx context.Context, imagePath string, opts dependency.OCROptions) ([]string, error) {
	f.paths = append(f.paths, imagePath)
	_, statErr := os.Stat(imagePath)
	f.existed = statErr == nil
	f.opts = opts
	return f.texts, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, plateLike(60, 20)))
	return buf.Bytes()
}

func newTestRecognizer(t *testing.T, reader *fakeReader) (*Recognizer, *dependency.PathManager) {
	t.Helper()
	dir := t.TempDir()
	paths := dependency.NewPathManager(filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs"))
	require.NoError(t, paths.EnsureDirs())
	return NewRecognizer(reader, paths, dependency.OCROptions{Engine: dependency.EngineEasyOCR, Script: "ocr.py"}), paths
}

func TestRecognizer_Found(t *testing.T) {
	reader := &fakeReader{texts: []string{"BRASIL", "bra 2e19"}}
	r, paths := newTestRecognizer(t, reader)

	plate, err := r.Recognize(context.Background(), pngBytes(t), true)
	require.NoError(t, err)
	assert.Equal(t, "BRA2E19", plate)

	require.Len(t, reader.paths, 1)
	assert.True(t, reader.existed, "processed image is written before reading")
	assert.Equal(t, filepath.Join(paths.OutputDir(), "plates"), filepath.Dir(reader.paths[0]))
	assert.NoFileExists(t, reader.paths[0], "processed image is removed afterwards")
	assert.Equal(t, "ocr.py", reader.opts.Script)
}

func TestRecognizer_UniqueImagePerRequest(t *testing.T) {
	reader := &fakeReader{texts: []string{"ABC-1234"}}
	r, _ := newTestRecognizer(t, reader)

	for i := 0; i < 2; i++ {
		_, err := r.Recognize(context.Background(), pngBytes(t), false)
		require.NoError(t, err)
	}
	require.Len(t, reader.paths, 2)
	assert.NotEqual(t, reader.paths[0], reader.paths[1])
}

func TestRecognizer_NoTextIsNotFound(t *testing.T) {
	r, _ := newTestRecognizer(t, &fakeReader{texts: []string{}})

	plate, err := r.Recognize(context.Background(), pngBytes(t), true)
	assert.ErrorIs(t, err, ErrPlateNotFound)
	assert.Empty(t, plate)
}

func TestRecognizer_NoMatchIsNotFound(t *testing.T) {
	r, _ := newTestRecognizer(t, &fakeReader{texts: []string{"ABC1234", "VENDE-SE"}})

	_, err := r.Recognize(context.Background(), pngBytes(t), true)
	assert.ErrorIs(t, err, ErrPlateNotFound)
}

func TestRecognizer_InvalidImage(t *testing.T) {
	reader := &fakeReader{}
	r, _ := newTestRecognizer(t, reader)

	_, err := r.Recognize(context.Background(), []byte("definitely not an image"), true)
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.True(t, apperr.IsCode(err, apperr.INVALID_IMAGE), err)
	assert.Empty(t, reader.paths, "reader is not called for undecodable input")
}

func TestRecognizer_ReaderFailure(t *testing.T) {
	r, _ := newTestRecognizer(t, &fakeReader{err: errors.New("easyocr: CUDA out of memory")})

	_, err := r.Recognize(context.Background(), pngBytes(t), true)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.OCR_FAILED))
	assert.NotErrorIs(t, err, ErrPlateNotFound)
}
