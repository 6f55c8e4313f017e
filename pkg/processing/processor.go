package processing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/font/gofont/goregular"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/object-scanner/pkg/types"
)

// ErrDecode is returned for bytes that no registered decoder understands
var ErrDecode = errors.New("cannot decode image")

var captionFont *truetype.Font

func init() {
	var err error
	captionFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Config holds frame processing parameters
type Config struct {
	MaxWidth     int        // frames wider than this are downscaled, 0 disables
	Format       string     // jpg, png or webp
	Quality      int        // jpeg/webp quality
	BoxColor     color.RGBA // annotation stroke and caption color
	LineWidth    float64
	FontSize     float64
	CaptionShift float64 // caption baseline distance above the box top
}

// DefaultConfig returns the processing parameters used by the detect endpoint
func DefaultConfig() Config {
	return Config{
		MaxWidth:     1280,
		Format:       "jpg",
		Quality:      90,
		BoxColor:     color.RGBA{0, 255, 0, 255},
		LineWidth:    4,
		FontSize:     24,
		CaptionShift: 15,
	}
}

// Processor handles image processing operations
type Processor struct {
	config Config
}

// NewProcessor creates a new image processor with default configuration
func NewProcessor() *Processor {
	return &Processor{config: DefaultConfig()}
}

// NewProcessorWithConfig creates a new image processor with custom configuration
func NewProcessorWithConfig(config Config) *Processor {
	return &Processor{config: config}
}

// Config returns the processor configuration
func (p *Processor) Config() Config {
	return p.config
}

// Decode decodes image bytes with the registered decoders, falling back to
// the libwebp decoder for WebP variants the pure Go decoder rejects.
func (p *Processor) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrDecode, err)
}

// LoadImage reads and decodes an image file
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return p.Decode(data)
}

// FitWidth downscales img to MaxWidth preserving aspect ratio. Images at or
// under the cap are returned unchanged.
func (p *Processor) FitWidth(img image.Image) image.Image {
	if p.config.MaxWidth <= 0 || img.Bounds().Dx() <= p.config.MaxWidth {
		return img
	}
	return imaging.Resize(img, p.config.MaxWidth, 0, imaging.Linear)
}

// CropBox copies the part of img covered by box into a new buffer. The box is
// in frame-local pixel coordinates and is clamped to the frame.
func (p *Processor) CropBox(img image.Image, box types.Box) *image.NRGBA {
	bounds := img.Bounds()
	rect := box.Clamp(bounds.Dx(), bounds.Dy()).Rect().Add(bounds.Min)
	return imaging.Crop(img, rect)
}

// Annotate draws box and caption on a copy of img
func (p *Processor) Annotate(img image.Image, box types.Box, caption string) image.Image {
	dc := gg.NewContextForImage(img)
	origin := img.Bounds().Min
	x1, y1 := box.X1-float64(origin.X), box.Y1-float64(origin.Y)

	dc.SetColor(p.config.BoxColor)
	dc.SetLineWidth(p.config.LineWidth)
	dc.DrawRectangle(x1, y1, box.Width(), box.Height())
	dc.Stroke()

	dc.SetFontFace(truetype.NewFace(captionFont, &truetype.Options{Size: p.config.FontSize}))
	dc.DrawString(caption, x1, y1-p.config.CaptionShift)
	return dc.Image()
}

// Caption formats the annotation text for a winner
func Caption(label, colorName string) string {
	return fmt.Sprintf("%s (%s)", strings.ToUpper(label), colorName)
}

// Encode serializes img in the configured output format
func (p *Processor) Encode(img image.Image) ([]byte, error) {
	return EncodeAs(img, p.config.Format, p.config.Quality)
}

// EncodeAs serializes img as jpg, png or webp
func EncodeAs(img image.Image, format string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
	case "", "jpg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return buf.Bytes(), nil
}

// SaveImage writes img to path in the given format
func (p *Processor) SaveImage(img image.Image, path, format string) error {
	data, err := EncodeAs(img, format, p.config.Quality)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ContentType returns the MIME type for an output format
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
