package selection

import (
	"math"

	"github.com/menta2k/object-scanner/pkg/types"
)

// Policy decides which candidate in a frame is worth reporting
type Policy struct {
	// ForbiddenLabels are never selected, compared by exact match
	ForbiddenLabels []string
	// MinAreaFraction is the minimum box area as a fraction of the frame area
	MinAreaFraction float64
}

// DefaultPolicy ignores people and anything smaller than 5% of the frame
func DefaultPolicy() Policy {
	return Policy{
		ForbiddenLabels: []string{"person"},
		MinAreaFraction: 0.05,
	}
}

// Select returns the eligible candidate whose box center is nearest to the
// frame center. When two candidates are equally near, the earlier one wins.
// The boolean is false when no candidate is eligible.
func (p Policy) Select(cands []types.Candidate, width, height int) (types.Candidate, bool) {
	cx, cy := float64(width)/2, float64(height)/2
	minArea := p.MinAreaFraction * float64(width) * float64(height)

	var (
		best     types.Candidate
		found    bool
		bestDist = math.Inf(1)
	)
	for _, c := range cands {
		if p.forbidden(c.Label) {
			continue
		}
		if c.Box.Area() < minArea {
			continue
		}
		bx, by := c.Box.Center()
		d := math.Hypot(bx-cx, by-cy)
		if d < bestDist {
			bestDist = d
			best = c
			found = true
		}
	}
	return best, found
}

// Eligible returns the candidates that pass the label and area filters, in order
func (p Policy) Eligible(cands []types.Candidate, width, height int) []types.Candidate {
	minArea := p.MinAreaFraction * float64(width) * float64(height)
	out := make([]types.Candidate, 0, len(cands))
	for _, c := range cands {
		if !p.forbidden(c.Label) && c.Box.Area() >= minArea {
			out = append(out, c)
		}
	}
	return out
}

func (p Policy) forbidden(label string) bool {
	for _, f := range p.ForbiddenLabels {
		if f == label {
			return true
		}
	}
	return false
}
