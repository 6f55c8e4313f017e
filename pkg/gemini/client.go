package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/menta2k/object-scanner/pkg/client"
)

const (
	// DefaultBaseURL is the public Generative Language API endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel is used when a request names no model
	DefaultModel = "gemini-2.5-flash"
)

// Client calls the Gemini generateContent REST API
type Client struct {
	http *resty.Client
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             *int     `json:"topK,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema  `json:"responseSchema,omitempty"`
}

type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Items       *schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type listResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

// NewClient creates a Gemini client. baseURL may be empty to use the public endpoint.
func NewClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	h := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("x-goog-api-key", apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Client{http: h}, nil
}

// Describe sends the image and prompt to generateContent and returns the
// concatenated text of the first candidate. A prompt block, an empty
// candidate list or a candidate without text yields client.ErrBlocked.
func (c *Client) Describe(ctx context.Context, req client.Request) (string, error) {
	model := strings.TrimPrefix(req.Model, "models/")
	if model == "" {
		model = DefaultModel
	}

	body := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: req.MimeType, Data: base64.StdEncoding.EncodeToString(req.Image)}},
				{Text: req.Prompt},
			},
		}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature > 0 {
		body.GenerationConfig.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		body.GenerationConfig.TopP = &req.TopP
	}
	if req.TopK > 0 {
		body.GenerationConfig.TopK = &req.TopK
	}
	if req.Schema != nil {
		body.GenerationConfig.ResponseMimeType = "application/json"
		body.GenerationConfig.ResponseSchema = convertSchema(req.Schema)
	}

	var out generateResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1beta/models/" + model + ":generateContent")
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("gemini: %s", describeError(resp.StatusCode(), apiErr))
	}

	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", client.ErrBlocked, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", client.ErrBlocked
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		if reason := out.Candidates[0].FinishReason; reason != "" {
			return "", fmt.Errorf("%w: finish reason %s", client.ErrBlocked, reason)
		}
		return "", client.ErrBlocked
	}
	return sb.String(), nil
}

// ListModels returns the models that support generateContent
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	pageToken := ""
	for {
		var out listResponse
		var apiErr apiError
		r := c.http.R().
			SetContext(ctx).
			SetQueryParam("pageSize", "1000").
			SetResult(&out).
			SetError(&apiErr)
		if pageToken != "" {
			r.SetQueryParam("pageToken", pageToken)
		}

		resp, err := r.Get("/v1beta/models")
		if err != nil {
			return nil, fmt.Errorf("gemini request: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("gemini: %s", describeError(resp.StatusCode(), apiErr))
		}

		for _, m := range out.Models {
			for _, method := range m.SupportedGenerationMethods {
				if method == "generateContent" {
					names = append(names, m.Name)
					break
				}
			}
		}
		if out.NextPageToken == "" {
			return names, nil
		}
		pageToken = out.NextPageToken
	}
}

// convertSchema maps JSON Schema type names to the uppercase OpenAPI names the API expects
func convertSchema(s *client.Schema) *schema {
	if s == nil {
		return nil
	}
	out := &schema{
		Type:        strings.ToUpper(s.Type),
		Description: s.Description,
		Items:       convertSchema(s.Items),
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = convertSchema(prop)
		}
	}
	return out
}

func describeError(status int, e apiError) string {
	if e.Error.Message != "" {
		return fmt.Sprintf("HTTP %d %s: %s", status, e.Error.Status, e.Error.Message)
	}
	return fmt.Sprintf("HTTP %d", status)
}
