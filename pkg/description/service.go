package description

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/object-scanner/pkg/client"
	"github.com/menta2k/object-scanner/pkg/extract"
	"github.com/menta2k/object-scanner/pkg/types"
)

// legacySensitiveKey is the misspelled field some prompts still produce
const legacySensitiveKey = "sentitive"

// Config holds generation parameters for description calls
type Config struct {
	Model       string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
	MaxTags     int // 0 keeps every tag
}

// DefaultConfig returns the generation parameters used by the analyze endpoint
func DefaultConfig() Config {
	return Config{
		Model:       "gemini-2.5-flash",
		Timeout:     60 * time.Second,
		Temperature: 0.4,
		TopP:        0.95,
		TopK:        64,
		MaxTokens:   1024,
		MaxTags:     0,
	}
}

// Service produces structured description records for images
type Service struct {
	client client.VisionClient
	config Config
	logger *zap.Logger
}

// NewService creates a description service on top of a vision client
func NewService(c client.VisionClient, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Service{client: c, config: config, logger: logger}
}

// Describe asks the model for a description record of image. A safety block
// yields types.BlockedDescription() without error. Any other failure, including
// unrecoverable model output, is returned as an error.
func (s *Service) Describe(ctx context.Context, image []byte, mimeType string) (*types.DescriptionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	text, err := s.client.Describe(ctx, client.Request{
		Model:        s.config.Model,
		SystemPrompt: SystemPrompt,
		Prompt:       DefaultPrompt,
		Image:        image,
		MimeType:     mimeType,
		Schema:       RecordSchema(),
		Temperature:  s.config.Temperature,
		TopP:         s.config.TopP,
		TopK:         s.config.TopK,
		MaxTokens:    s.config.MaxTokens,
	})
	if errors.Is(err, client.ErrBlocked) {
		s.logger.Warn("description blocked by model", zap.Error(err))
		return types.BlockedDescription(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("description request failed: %w", err)
	}

	res, err := extract.Extract(text)
	if err != nil {
		s.logger.Warn("unparseable model output", zap.Int("length", len(text)), zap.Error(err))
		return nil, fmt.Errorf("invalid JSON from model: %w", err)
	}
	if res.Repaired() {
		s.logger.Warn("repaired model output", zap.String("strategy", string(res.Strategy)))
	}

	return s.toRecord(res.Object), nil
}

// ListModels returns the models the configured provider offers
func (s *Service) ListModels(ctx context.Context) ([]string, error) {
	return s.client.ListModels(ctx)
}

func (s *Service) toRecord(obj map[string]any) *types.DescriptionRecord {
	sensitive, ok := obj["sensitive"]
	if !ok {
		sensitive = obj[legacySensitiveKey]
	}

	return &types.DescriptionRecord{
		Label:           stringField(obj["label"], types.Unknown),
		Color:           stringField(obj["color"], types.Unknown),
		Description:     stringField(obj["description"], types.Unknown),
		Tags:            normalizeTags(obj["tags"], s.config.MaxTags),
		LocationContext: stringField(obj["location_context"], types.Unknown),
		Sensitive:       stringField(sensitive, "unknown"),
	}
}

func stringField(v any, def string) string {
	switch t := v.(type) {
	case nil:
		return def
	case string:
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
		return def
	default:
		return fmt.Sprint(t)
	}
}

// normalizeTags trims tags and drops empty and repeated ones. A positive
// limit caps the count.
func normalizeTags(v any, limit int) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(t, ",")
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
