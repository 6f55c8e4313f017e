package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/object-scanner/pkg/processing"
	"github.com/menta2k/object-scanner/pkg/selection"
	"github.com/menta2k/object-scanner/pkg/types"
	"github.com/menta2k/object-scanner/pkg/vision"
)

// Frame outcomes reported to an Observer
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// FrameDetector produces the aggregated candidates of one frame
type FrameDetector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Candidate, error)
}

// Observer receives per-frame measurements
type Observer interface {
	ObserveFrame(outcome string, elapsed time.Duration)
	ObserveCandidates(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveFrame(string, time.Duration) {}
func (nopObserver) ObserveCandidates(int)              {}

// Pipeline turns one encoded frame into a DetectionResult
type Pipeline struct {
	processor *processing.Processor
	detector  FrameDetector
	policy    selection.Policy
	colors    *vision.ColorExtractor
	observer  Observer
	logger    *zap.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithProcessor overrides the frame processor
func WithProcessor(p *processing.Processor) Option {
	return func(pl *Pipeline) { pl.processor = p }
}

// WithPolicy overrides the selection policy
func WithPolicy(policy selection.Policy) Option {
	return func(pl *Pipeline) { pl.policy = policy }
}

// WithColorExtractor overrides the dominant color extractor
func WithColorExtractor(e *vision.ColorExtractor) Option {
	return func(pl *Pipeline) { pl.colors = e }
}

// WithObserver sets the metrics observer
func WithObserver(o Observer) Option {
	return func(pl *Pipeline) { pl.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// New creates a pipeline over detector with default processing, selection
// and color parameters.
func New(detector FrameDetector, opts ...Option) *Pipeline {
	p := &Pipeline{
		processor: processing.NewProcessor(),
		detector:  detector,
		policy:    selection.DefaultPolicy(),
		colors:    vision.NewColorExtractor(),
		observer:  nopObserver{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Process decodes data and runs the detection pipeline on it. Undecodable
// input fails with an error wrapping processing.ErrDecode. A frame without a
// qualifying object yields types.NotFound(), not an error.
func (p *Pipeline) Process(ctx context.Context, data []byte) (*types.DetectionResult, error) {
	start := time.Now()
	res, err := p.process(ctx, data)

	outcome := OutcomeError
	switch {
	case err != nil:
	case res.Found:
		outcome = OutcomeFound
	default:
		outcome = OutcomeNotFound
	}
	p.observer.ObserveFrame(outcome, time.Since(start))
	return res, err
}

func (p *Pipeline) process(ctx context.Context, data []byte) (*types.DetectionResult, error) {
	img, err := p.processor.Decode(data)
	if err != nil {
		return nil, err
	}
	return p.ProcessImage(ctx, img)
}

// ProcessImage runs the pipeline on an already decoded frame
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image) (*types.DetectionResult, error) {
	frame := p.processor.FitWidth(img)
	bounds := frame.Bounds()

	cands, err := p.detector.Detect(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	p.observer.ObserveCandidates(len(cands))

	winner, ok := p.policy.Select(cands, bounds.Dx(), bounds.Dy())
	if !ok {
		p.logger.Debug("no qualifying object", zap.Int("candidates", len(cands)))
		return types.NotFound(), nil
	}

	colorName := p.colors.Dominant(p.processor.CropBox(frame, winner.Box))
	annotated := p.processor.Annotate(frame, winner.Box, processing.Caption(winner.Label, colorName))

	encoded, err := p.processor.Encode(annotated)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	p.logger.Debug("object selected",
		zap.String("label", winner.Label),
		zap.String("color", colorName),
		zap.Float64("confidence", winner.Confidence),
		zap.String("source", winner.Source))

	return &types.DetectionResult{
		Found: true,
		Label: winner.Label,
		Color: colorName,
		Image: encoded,
	}, nil
}
