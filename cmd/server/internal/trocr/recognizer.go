// Package trocr runs single-image text recognition on a transformer OCR model
// (microsoft/trocr-base-printed by default) served by an inference service.
package trocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage means the upload could not be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// Recognizer decodes the text of one image.
//
// Implementations must be safe for concurrent use: the model is loaded once
// and shared by every request.
type Recognizer interface {
	// Recognize returns the decoded text verbatim. An image without text
	// yields "" and no error.
	Recognize(ctx context.Context, img image.Image) (string, error)

	// Name identifies the implementation for logs and metrics.
	Name() string
}

// Decode parses an uploaded image (png, jpeg, gif, bmp, tiff or webp).
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// ToRGB converts img to an opaque RGB image, flattening transparency onto white.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
