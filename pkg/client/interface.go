package client

import (
	"context"
	"errors"
)

// ErrBlocked is returned when the model declines to answer, for example
// because of a safety filter.
var ErrBlocked = errors.New("response blocked by model")

// Schema is the subset of JSON Schema the description providers understand.
// Type names are lowercase JSON Schema names; providers translate as needed.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Request is one image description call
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Image        []byte
	MimeType     string
	Schema       *Schema // structured output constraint, nil for free text

	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// VisionClient is a multimodal model that describes images
type VisionClient interface {
	// Describe returns the model's raw text answer for req
	Describe(ctx context.Context, req Request) (string, error)
	// ListModels returns the names of models usable for Describe
	ListModels(ctx context.Context) ([]string, error)
}
