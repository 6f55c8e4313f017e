// Package objectscanner wires the lost-and-found scanning service together.
//
// A Scanner owns the detector set, the frame pipeline with its worker pool,
// the optional description service and the metrics registry. The HTTP layer
// and the CLI are thin shells over it.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.ApplyEnv(nil)
//
//	s, err := objectscanner.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	res, err := s.Scan(ctx, frameBytes)
package objectscanner

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/menta2k/object-scanner/internal/config"
	"github.com/menta2k/object-scanner/internal/monitor"
	"github.com/menta2k/object-scanner/internal/server"
	"github.com/menta2k/object-scanner/pkg/client"
	"github.com/menta2k/object-scanner/pkg/description"
	"github.com/menta2k/object-scanner/pkg/detection"
	"github.com/menta2k/object-scanner/pkg/gemini"
	"github.com/menta2k/object-scanner/pkg/llamacpp"
	"github.com/menta2k/object-scanner/pkg/ollama"
	"github.com/menta2k/object-scanner/pkg/pipeline"
	"github.com/menta2k/object-scanner/pkg/processing"
	"github.com/menta2k/object-scanner/pkg/selection"
	"github.com/menta2k/object-scanner/pkg/types"
	"github.com/menta2k/object-scanner/pkg/vision"
)

// Version of the scanner service
const Version = "1.0.0"

// ErrDescriptionDisabled is returned by Describe when no vision client is configured
var ErrDescriptionDisabled = errors.New("description service is not configured")

// Default endpoints for local vision model servers
const (
	DefaultOllamaURL   = "http://localhost:11435/api/chat"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// DetectorSet is the aggregated detector the scanner runs on each frame
type DetectorSet interface {
	pipeline.FrameDetector
	Names() []string
	Close() error
}

// Scanner is the assembled service
type Scanner struct {
	config    *config.Config
	detectors DetectorSet
	pipeline  *pipeline.Pipeline
	pool      *pipeline.Pool
	describer *description.Service
	metrics   *monitor.Metrics
	logger    *zap.Logger
}

type options struct {
	detectors DetectorSet
	vision    client.VisionClient
	metrics   *monitor.Metrics
	logger    *zap.Logger
}

// Option customizes New
type Option func(*options)

// WithDetectors replaces loading detectors from the configuration
func WithDetectors(d DetectorSet) Option {
	return func(o *options) { o.detectors = d }
}

// WithVisionClient replaces the client built from the description settings
func WithVisionClient(c client.VisionClient) Option {
	return func(o *options) { o.vision = c }
}

// WithMetrics sets the metrics registry; by default one is created when
// metrics are enabled in the configuration.
func WithMetrics(m *monitor.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New assembles a Scanner from cfg. It fails when the configuration is
// invalid or when no detector can be loaded. A missing description
// credential only disables Describe.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Scanner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil && cfg.Metrics.Enabled {
		o.metrics = monitor.New()
	}

	s := &Scanner{config: cfg, metrics: o.metrics, logger: o.logger}

	s.detectors = o.detectors
	if s.detectors == nil {
		agg, err := detection.Load(ctx, cfg.Detection.Detectors, detectionOptions(cfg), o.logger)
		if err != nil {
			return nil, err
		}
		s.detectors = agg
	}
	o.logger.Info("detectors ready", zap.Strings("names", s.detectors.Names()))

	popts := []pipeline.Option{
		pipeline.WithProcessor(processing.NewProcessorWithConfig(processorConfig(cfg))),
		pipeline.WithPolicy(selection.Policy{
			ForbiddenLabels: cfg.Selection.ForbiddenLabels,
			MinAreaFraction: cfg.Selection.MinAreaFraction,
		}),
		pipeline.WithColorExtractor(vision.NewColorExtractorWithConfig(colorConfig(cfg), nil)),
		pipeline.WithLogger(o.logger),
	}
	if s.metrics != nil {
		popts = append(popts, pipeline.WithObserver(s.metrics))
	}
	s.pipeline = pipeline.New(s.detectors, popts...)
	s.pool = pipeline.NewPool(s.pipeline, cfg.Server.Workers, cfg.Server.QueueSize, o.logger)

	vc := o.vision
	if vc == nil {
		var err error
		vc, err = NewVisionClient(cfg.Description)
		if err != nil {
			o.logger.Warn("description disabled", zap.Error(err))
		}
	}
	if vc != nil {
		s.describer = description.NewService(vc, descriptionConfig(cfg), o.logger)
	}

	return s, nil
}

// NewVisionClient builds the client for the configured description provider
func NewVisionClient(cfg config.DescriptionConfig) (client.VisionClient, error) {
	switch cfg.Provider {
	case "", "gemini":
		c, err := gemini.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "ollama":
		url := cfg.BaseURL
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "llamacpp":
		url := cfg.BaseURL
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown description provider: %s", cfg.Provider)
	}
}

// Scan queues an encoded frame on the worker pool and waits for the result
func (s *Scanner) Scan(ctx context.Context, data []byte) (*types.DetectionResult, error) {
	return s.pool.Submit(ctx, data)
}

// ScanImage runs the pipeline on a decoded frame in the calling goroutine
func (s *Scanner) ScanImage(ctx context.Context, img image.Image) (*types.DetectionResult, error) {
	return s.pipeline.ProcessImage(ctx, img)
}

// Describe produces a description record for an encoded image
func (s *Scanner) Describe(ctx context.Context, data []byte, mimeType string) (*types.DescriptionRecord, error) {
	if s.describer == nil {
		return nil, ErrDescriptionDisabled
	}
	return s.describer.Describe(ctx, data, mimeType)
}

// ListModels lists the models offered by the description provider
func (s *Scanner) ListModels(ctx context.Context) ([]string, error) {
	if s.describer == nil {
		return nil, ErrDescriptionDisabled
	}
	return s.describer.ListModels(ctx)
}

// DescriptionEnabled reports whether Describe can succeed
func (s *Scanner) DescriptionEnabled() bool {
	return s.describer != nil
}

// Detectors returns the names of the loaded detectors in run order
func (s *Scanner) Detectors() []string {
	return s.detectors.Names()
}

// Metrics returns the registry, or nil when metrics are disabled
func (s *Scanner) Metrics() *monitor.Metrics {
	return s.metrics
}

// QueueDepth returns the number of frames waiting for a worker
func (s *Scanner) QueueDepth() int {
	return s.pool.QueueDepth()
}

// Server builds the HTTP server backed by this scanner
func (s *Scanner) Server() *server.Server {
	var describer server.Describer
	if s.describer != nil {
		describer = s.describer
	}
	return server.New(server.Config{
		Addr:            s.config.Server.Addr,
		MaxUploadMB:     s.config.Server.MaxUploadMB,
		RequestTimeout:  s.config.Server.RequestTimeout,
		ShutdownTimeout: s.config.Server.ShutdownTimeout,
		Detectors:       s.detectors.Names(),
	}, s.pool, describer, s.metrics, s.logger)
}

// Close stops the worker pool and releases the detectors
func (s *Scanner) Close() error {
	s.pool.Close()
	return s.detectors.Close()
}

func detectionOptions(cfg *config.Config) detection.Options {
	return detection.Options{
		Confidence:  cfg.Detection.Confidence,
		IoU:         cfg.Detection.IoU,
		AgnosticNMS: cfg.Detection.AgnosticNMS,
		InputSize:   cfg.Detection.InputSize,
	}
}

func processorConfig(cfg *config.Config) processing.Config {
	pc := processing.DefaultConfig()
	pc.MaxWidth = cfg.Frame.MaxWidth
	pc.Format = cfg.Frame.OutputFormat
	pc.Quality = cfg.Frame.OutputQuality
	return pc
}

func colorConfig(cfg *config.Config) vision.ColorConfig {
	cc := vision.DefaultColorConfig()
	if cfg.Color.SampleSize > 0 {
		cc.SampleSize = cfg.Color.SampleSize
	}
	cc.BlurSigma = cfg.Color.BlurSigma
	cc.Bucket = cfg.Color.Bucket
	return cc
}

func descriptionConfig(cfg *config.Config) description.Config {
	dc := description.DefaultConfig()
	dc.Model = cfg.Description.ModelName()
	if cfg.Description.Timeout > 0 {
		dc.Timeout = cfg.Description.Timeout
	}
	dc.Temperature = cfg.Description.Temperature
	dc.TopP = cfg.Description.TopP
	dc.TopK = cfg.Description.TopK
	dc.MaxTokens = cfg.Description.MaxTokens
	return dc
}
