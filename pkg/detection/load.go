package detection

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/object-scanner/internal/utils"
)

// DefaultModelPath is used when no detectors are configured
const DefaultModelPath = "models/yolov8s.onnx"

// DefaultSpecs returns the detector list used when none is configured
func DefaultSpecs() []Spec {
	return []Spec{{Name: "yolov8s", Backend: BackendONNX, Path: DefaultModelPath}}
}

// Load builds the ordered detector set. Detectors whose model file is missing
// or whose backend fails to initialize are skipped with a warning. Load fails
// with ErrNoDetectors when nothing usable remains.
func Load(ctx context.Context, specs []Spec, opts Options, logger *zap.Logger) (*Aggregator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}

	var detectors []Detector
	for _, spec := range specs {
		d, err := open(ctx, spec, logger)
		if err != nil {
			logger.Warn("skipping detector",
				zap.String("name", spec.Name),
				zap.String("backend", spec.Backend),
				zap.String("path", spec.Path),
				zap.Error(err))
			continue
		}
		logger.Info("loaded detector", zap.String("name", d.Name()), zap.String("backend", spec.Backend))
		detectors = append(detectors, d)
	}

	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	return NewAggregator(opts, detectors...), nil
}

func open(ctx context.Context, spec Spec, logger *zap.Logger) (Detector, error) {
	backend := strings.ToLower(spec.Backend)
	if backend == "" {
		backend = BackendONNX
	}

	switch backend {
	case BackendONNX:
		if spec.Path == "" {
			return nil, fmt.Errorf("no model path")
		}
		if !utils.FileExists(spec.Path) {
			return nil, fmt.Errorf("model file not found: %s", spec.Path)
		}
		if spec.Name == "" {
			spec.Name = strings.TrimSuffix(filepath.Base(spec.Path), filepath.Ext(spec.Path))
		}
		return NewONNXDetector(spec)

	case BackendRemote:
		d, err := NewRemoteDetector(spec.Name, spec.URL, 0)
		if err != nil {
			return nil, err
		}
		hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.CheckHealth(hctx); err != nil {
			logger.Warn("inference service not reachable, continuing", zap.String("url", spec.URL), zap.Error(err))
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", spec.Backend)
	}
}

// SpecsFromPaths turns a list of model files into onnx detector specs
func SpecsFromPaths(paths []string) []Spec {
	specs := make([]Spec, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		specs = append(specs, Spec{Backend: BackendONNX, Path: p})
	}
	return specs
}
