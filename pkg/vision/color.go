package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// ColorConfig holds configuration for dominant color estimation
type ColorConfig struct {
	SampleSize     int     // side of the square the region is resampled to
	BlurSigma      float64 // gaussian blur applied before binning, 0 disables
	Bucket         int     // channel quantization step
	CenterFraction float64 // fraction of width/height kept around the center
}

// DefaultColorConfig returns the default extraction parameters
func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		SampleSize:     64,
		BlurSigma:      1.1,
		Bucket:         50,
		CenterFraction: 0.5,
	}
}

// ColorExtractor estimates the single most representative color of a region
type ColorExtractor struct {
	config  ColorConfig
	palette Palette
}

// NewColorExtractor creates an extractor with default configuration and palette
func NewColorExtractor() *ColorExtractor {
	return &ColorExtractor{config: DefaultColorConfig(), palette: DefaultPalette()}
}

// NewColorExtractorWithConfig creates an extractor with custom configuration
func NewColorExtractorWithConfig(config ColorConfig, palette Palette) *ColorExtractor {
	if len(palette) == 0 {
		palette = DefaultPalette()
	}
	return &ColorExtractor{config: config, palette: palette}
}

// Dominant returns the palette name of the most frequent quantized color in
// the central part of img, or "Unknown" for an empty region.
func (e *ColorExtractor) Dominant(img image.Image) string {
	if img == nil || img.Bounds().Empty() {
		return "Unknown"
	}

	sample := imaging.Resize(e.centerRegion(img), e.sampleSize(), e.sampleSize(), imaging.Linear)
	if e.config.BlurSigma > 0 {
		sample = imaging.Blur(sample, e.config.BlurSigma)
	}

	r, g, b, ok := e.mode(sample)
	if !ok {
		return "Unknown"
	}
	return e.palette.Classify(r, g, b)
}

// centerRegion crops to the central CenterFraction of the region, falling
// back to the whole region when the crop would be empty.
func (e *ColorExtractor) centerRegion(img image.Image) image.Image {
	frac := e.config.CenterFraction
	if frac <= 0 || frac >= 1 {
		return img
	}
	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	lo, hi := (1-frac)/2, (1+frac)/2

	rect := image.Rect(
		bounds.Min.X+int(w*lo), bounds.Min.Y+int(h*lo),
		bounds.Min.X+int(w*hi), bounds.Min.Y+int(h*hi),
	)
	if rect.Empty() {
		return img
	}
	return imaging.Crop(img, rect)
}

// mode returns the most frequent quantized triple; ties go to the triple seen
// first in a row-major scan.
func (e *ColorExtractor) mode(img *image.NRGBA) (uint8, uint8, uint8, bool) {
	bucket := e.config.Bucket
	if bucket <= 0 {
		bucket = 1
	}
	quantize := func(v uint8) uint8 {
		return uint8(int(v) / bucket * bucket)
	}

	counts := make(map[[3]uint8]int)
	var order [][3]uint8
	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		i := y * img.Stride
		for x := 0; x < bounds.Dx(); x++ {
			key := [3]uint8{quantize(img.Pix[i]), quantize(img.Pix[i+1]), quantize(img.Pix[i+2])}
			if _, seen := counts[key]; !seen {
				order = append(order, key)
			}
			counts[key]++
			i += 4
		}
	}
	if len(order) == 0 {
		return 0, 0, 0, false
	}

	best := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[best] {
			best = key
		}
	}
	return best[0], best[1], best[2], true
}

func (e *ColorExtractor) sampleSize() int {
	if e.config.SampleSize <= 0 {
		return 64
	}
	return e.config.SampleSize
}
