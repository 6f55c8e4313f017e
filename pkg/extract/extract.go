package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrExtraction is returned when no strategy recovers a JSON object from the text
var ErrExtraction = errors.New("no JSON object could be extracted")

// Strategy names the recovery step that produced a result
type Strategy string

const (
	Direct     Strategy = "direct"
	BraceSlice Strategy = "brace_slice"
	Truncated  Strategy = "truncated"
	Lenient    Strategy = "lenient"
)

// Result is a recovered JSON object together with the step that recovered it
type Result struct {
	Raw      json.RawMessage
	Object   map[string]any
	Strategy Strategy
}

// Repaired reports whether anything beyond fence stripping was needed
func (r Result) Repaired() bool {
	return r.Strategy != Direct
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// Extract recovers one JSON object from model output. It tries, in order:
// the text with code fences removed, the span from the first '{' to the last
// '}', the span from the first '{' to the end with one '}' appended, and a
// lenient cleanup that drops comments and trailing commas.
//
// The lenient step accepts text the first three reject, such as {"a":1,}.
// Callers that need strict parsing should check Result.Strategy and treat
// Lenient as a failure.
func Extract(text string) (Result, error) {
	cleaned := stripFences(text)

	attempts := []struct {
		strategy Strategy
		raw      func() (string, bool)
	}{
		{Direct, func() (string, bool) { return cleaned, true }},
		{BraceSlice, func() (string, bool) {
			start := strings.Index(cleaned, "{")
			end := strings.LastIndex(cleaned, "}")
			if start < 0 || end <= start {
				return "", false
			}
			return cleaned[start : end+1], true
		}},
		{Truncated, func() (string, bool) {
			start := strings.Index(cleaned, "{")
			if start < 0 {
				return "", false
			}
			return cleaned[start:] + "}", true
		}},
		{Lenient, func() (string, bool) {
			s := cleaned
			if strings.LastIndex(s, "}") < strings.Index(s, "{") {
				s += "}"
			}
			s = sanitize(s)
			return s, strings.HasPrefix(s, "{")
		}},
	}

	lastErr := errors.New("no opening brace")
	for _, a := range attempts {
		raw, ok := a.raw()
		if !ok {
			continue
		}
		obj, err := parseObject(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return Result{Raw: json.RawMessage(raw), Object: obj, Strategy: a.strategy}, nil
	}
	return Result{}, fmt.Errorf("%w: %v", ErrExtraction, lastErr)
}

// Object returns the recovered JSON object as a generic map
func Object(text string) (map[string]any, error) {
	res, err := Extract(text)
	if err != nil {
		return nil, err
	}
	return res.Object, nil
}

// Into recovers a JSON object from text and decodes it into v
func Into(text string, v any) (Result, error) {
	res, err := Extract(text)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(res.Raw, v); err != nil {
		return res, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return res, nil
}

func parseObject(raw string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	return obj, nil
}

func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// sanitize removes comments and trailing commas, keeping only the outermost {...}
func sanitize(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), "`")
	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
