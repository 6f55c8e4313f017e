package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     map[string]any
		strategy Strategy
	}{
		{"plain", `{"a":1}`, map[string]any{"a": float64(1)}, Direct},
		{"fenced", "```json {\"a\":1}```", map[string]any{"a": float64(1)}, Direct},
		{"fenced multiline", "```json\n{\n  \"a\": 1\n}\n```", map[string]any{"a": float64(1)}, Direct},
		{"bare fence", "```\n{\"a\":1}\n```", map[string]any{"a": float64(1)}, Direct},
		{"surrounding prose", `Here you go: {"a":1} hope that helps`, map[string]any{"a": float64(1)}, BraceSlice},
		{"truncated", `{"a":1`, map[string]any{"a": float64(1)}, Truncated},
		{"truncated string value", `{"label":"bag","color":"Red"`, map[string]any{"label": "bag", "color": "Red"}, Truncated},
		{"trailing comma", `{"a":1,}`, map[string]any{"a": float64(1)}, Lenient},
		{"comment", "{\n// note\n\"a\":1}", map[string]any{"a": float64(1)}, Lenient},
		{"truncated after comma", `{"a":1,`, map[string]any{"a": float64(1)}, Lenient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Extract(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Object)
			assert.Equal(t, tt.strategy, res.Strategy)

			obj, err := Object(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, obj)
		})
	}
}

func TestObjectFailures(t *testing.T) {
	inputs := []string{
		"",
		"garbage with no brace",
		"null",
		"[1,2,3]",
		`{"a": {"b": 1`,
		`{"a": }`,
	}
	for _, in := range inputs {
		_, err := Object(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.Is(err, ErrExtraction), "input %q", in)
	}
}

func TestInto(t *testing.T) {
	var rec struct {
		Label string   `json:"label"`
		Tags  []string `json:"tags"`
	}

	res, err := Into("```json\n{\"label\":\"umbrella\",\"tags\":[\"black\",\"folding\"]}\n```", &rec)
	require.NoError(t, err)
	assert.False(t, res.Repaired())
	assert.Equal(t, "umbrella", rec.Label)
	assert.Equal(t, []string{"black", "folding"}, rec.Tags)
}

func TestIntoTypeMismatch(t *testing.T) {
	var rec struct {
		Tags []string `json:"tags"`
	}
	_, err := Into(`{"tags": 7}`, &rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestRepaired(t *testing.T) {
	res, err := Extract(`{"a":1`)
	require.NoError(t, err)
	assert.True(t, res.Repaired())
}

func TestStrategyNames(t *testing.T) {
	assert.Equal(t, Strategy("direct"), Direct)
	assert.Equal(t, Strategy("brace_slice"), BraceSlice)
	assert.Equal(t, Strategy("truncated"), Truncated)
	assert.Equal(t, Strategy("lenient"), Lenient)
}

func TestLenientAcceptsTrailingComma(t *testing.T) {
	res, err := Extract(`{"a":1,}`)
	require.NoError(t, err)
	assert.Equal(t, Lenient, res.Strategy)
	assert.Equal(t, map[string]any{"a": float64(1)}, res.Object)
}
