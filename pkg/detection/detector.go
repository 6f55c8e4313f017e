package detection

import (
	"context"
	"errors"
	"image"

	"github.com/menta2k/object-scanner/pkg/types"
)

var (
	// ErrNoDetectors is returned by Load when no configured detector could be initialized
	ErrNoDetectors = errors.New("no detectors available")
	// ErrBackendUnavailable is returned by backends that are not compiled into this binary
	ErrBackendUnavailable = errors.New("detector backend unavailable")
)

// Backend names accepted in a Spec
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Options control a single inference call
type Options struct {
	Confidence  float64 // minimum class score
	IoU         float64 // NMS overlap threshold
	AgnosticNMS bool    // suppress overlapping boxes across classes
	InputSize   int     // square network input side
}

// DefaultOptions returns the options used for every frame
func DefaultOptions() Options {
	return Options{
		Confidence:  0.50,
		IoU:         0.45,
		AgnosticNMS: true,
		InputSize:   640,
	}
}

// Detector finds labelled boxes in one frame. Implementations must be safe
// for concurrent use and must return boxes in the frame's pixel coordinates.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img image.Image, opts Options) ([]types.Candidate, error)
	Close() error
}

// Spec describes one detector to load
type Spec struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`   // model file for the onnx backend
	Labels  string `yaml:"labels,omitempty"` // optional class names file, one per line
	URL     string `yaml:"url,omitempty"`    // inference endpoint for the remote backend
}
