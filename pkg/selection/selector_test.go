package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/object-scanner/pkg/types"
)

func cand(label string, x1, y1, x2, y2 float64) types.Candidate {
	return types.Candidate{Box: types.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Label: label, Confidence: 0.9}
}

func TestSelectNearestToCenter(t *testing.T) {
	p := DefaultPolicy()
	cands := []types.Candidate{
		cand("cup", 0, 0, 200, 200),
		cand("backpack", 220, 140, 420, 340),
		cand("bottle", 440, 280, 640, 480),
	}

	got, ok := p.Select(cands, 640, 480)
	require.True(t, ok)
	assert.Equal(t, "backpack", got.Label)
}

func TestSelectExcludesPerson(t *testing.T) {
	p := DefaultPolicy()
	cands := []types.Candidate{
		cand("person", 220, 140, 420, 340),
		cand("cup", 0, 0, 200, 200),
	}

	got, ok := p.Select(cands, 640, 480)
	require.True(t, ok)
	assert.Equal(t, "cup", got.Label)
}

func TestSelectLabelMatchIsExact(t *testing.T) {
	p := DefaultPolicy()
	got, ok := p.Select([]types.Candidate{cand("Person", 0, 0, 300, 300)}, 640, 480)
	require.True(t, ok)
	assert.Equal(t, "Person", got.Label)
}

func TestSelectExcludesSmallBoxes(t *testing.T) {
	p := DefaultPolicy()
	// 640x480 frame: 5% is 15360 px^2. 100x100 is too small, 124x124 is enough.
	cands := []types.Candidate{
		cand("ring", 270, 190, 370, 290),
		cand("wallet", 0, 0, 124, 124),
	}

	got, ok := p.Select(cands, 640, 480)
	require.True(t, ok)
	assert.Equal(t, "wallet", got.Label)
}

func TestSelectAreaBoundaryIsInclusive(t *testing.T) {
	p := Policy{MinAreaFraction: 0.25}
	got, ok := p.Select([]types.Candidate{cand("book", 0, 0, 50, 50)}, 100, 100)
	require.True(t, ok)
	assert.Equal(t, "book", got.Label)
}

func TestSelectNoEligible(t *testing.T) {
	p := DefaultPolicy()

	_, ok := p.Select(nil, 640, 480)
	assert.False(t, ok)

	_, ok = p.Select([]types.Candidate{
		cand("person", 0, 0, 640, 480),
		cand("key", 0, 0, 10, 10),
	}, 640, 480)
	assert.False(t, ok)
}

func TestSelectTieKeepsEarlier(t *testing.T) {
	p := DefaultPolicy()
	// Mirror-image boxes, same distance from the center.
	cands := []types.Candidate{
		cand("umbrella", 100, 140, 300, 340),
		cand("handbag", 340, 140, 540, 340),
	}

	got, ok := p.Select(cands, 640, 480)
	require.True(t, ok)
	assert.Equal(t, "umbrella", got.Label)

	got, ok = p.Select([]types.Candidate{cands[1], cands[0]}, 640, 480)
	require.True(t, ok)
	assert.Equal(t, "handbag", got.Label)
}

func TestSelectPreservesCandidate(t *testing.T) {
	p := DefaultPolicy()
	in := types.Candidate{
		Box:        types.Box{X1: 200, Y1: 150, X2: 440, Y2: 330},
		Label:      "laptop",
		Confidence: 0.73,
		Source:     "yolov8s",
	}

	got, ok := p.Select([]types.Candidate{in}, 640, 480)
	require.True(t, ok)
	assert.Equal(t, in, got)
}

func TestEligible(t *testing.T) {
	p := DefaultPolicy()
	cands := []types.Candidate{
		cand("person", 0, 0, 640, 480),
		cand("cup", 0, 0, 200, 200),
		cand("key", 0, 0, 5, 5),
		cand("phone", 300, 200, 500, 400),
	}

	got := p.Eligible(cands, 640, 480)
	require.Len(t, got, 2)
	assert.Equal(t, "cup", got[0].Label)
	assert.Equal(t, "phone", got[1].Label)
}
