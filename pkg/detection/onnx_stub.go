//go:build !gocv
// +build !gocv

package detection

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/object-scanner/pkg/types"
)

// ONNXDetector is unavailable in builds without the gocv tag
type ONNXDetector struct {
	name string
}

// NewONNXDetector reports that the OpenCV backend is not compiled in
func NewONNXDetector(spec Spec) (*ONNXDetector, error) {
	return nil, fmt.Errorf("%w: onnx backend requires the gocv build tag", ErrBackendUnavailable)
}

func (d *ONNXDetector) Name() string {
	return d.name
}

func (d *ONNXDetector) Detect(ctx context.Context, img image.Image, opts Options) ([]types.Candidate, error) {
	return nil, ErrBackendUnavailable
}

func (d *ONNXDetector) Close() error {
	return nil
}
