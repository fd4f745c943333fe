package plate

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

const (
	// thresholdBlockSize is the neighbourhood of the adaptive threshold.
	thresholdBlockSize = 11
	// thresholdC is subtracted from the local mean.
	thresholdC = 2
	// denoiseRadius of the median filter.
	denoiseRadius = 1.5
)

// thresholdSigma is the Gaussian sigma used for a block of thresholdBlockSize:
// 0.3*((size-1)*0.5 - 1) + 0.8
var thresholdSigma = 0.3*((float64(thresholdBlockSize)-1)*0.5-1) + 0.8

// Preprocess turns a photo into a binary image suited for OCR:
// grayscale, optional histogram equalization, adaptive Gaussian threshold and median denoise.
func Preprocess(img image.Image, enhanceContrast bool) *image.Gray {
	gray := toGray(imaging.Grayscale(img))
	if enhanceContrast {
		gray = equalizeHistogram(gray)
	}
	binary := adaptiveThreshold(gray, thresholdSigma, thresholdC)
	return toGray(effect.Median(binary, denoiseRadius))
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return out
}

// equalizeHistogram spreads the gray levels over the full 0..255 range using
// the cumulative histogram.
func equalizeHistogram(src *image.Gray) *image.Gray {
	var hist [256]int
	for _, v := range src.Pix {
		hist[v]++
	}

	total := len(src.Pix)
	cdfMin := 0
	for _, n := range hist {
		if n > 0 {
			cdfMin = n
			break
		}
	}
	if total == cdfMin {
		// single gray level: nothing to spread
		return src
	}

	var lut [256]uint8
	cdf := 0
	for i, n := range hist {
		cdf += n
		v := float64(cdf-cdfMin) / float64(total-cdfMin) * 255
		if v < 0 {
			v = 0
		}
		lut[i] = uint8(v + 0.5)
	}

	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		dst.Pix[i] = lut[v]
	}
	return dst
}

// adaptiveThreshold sets a pixel white when it is brighter than its Gaussian
// weighted neighbourhood mean minus c, black otherwise.
func adaptiveThreshold(src *image.Gray, sigma float64, c int) *image.Gray {
	mean := toGray(imaging.Blur(src, sigma))

	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		if int(v) > int(mean.Pix[i])-c {
			dst.Pix[i] = 255
		}
	}
	return dst
}
