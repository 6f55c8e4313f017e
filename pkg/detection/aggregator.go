package detection

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/multierr"

	"github.com/menta2k/object-scanner/pkg/types"
)

// Aggregator runs a fixed, ordered set of detectors over a frame. The set is
// never modified after construction and is shared by all requests.
type Aggregator struct {
	detectors []Detector
	opts      Options
}

// NewAggregator creates an aggregator over detectors in the given order
func NewAggregator(opts Options, detectors ...Detector) *Aggregator {
	ds := make([]Detector, len(detectors))
	copy(ds, detectors)
	return &Aggregator{detectors: ds, opts: opts}
}

// Detect runs every detector in order and concatenates their candidates.
// Candidate order is detector order, then each detector's own output order.
// An error from any detector aborts the frame.
func (a *Aggregator) Detect(ctx context.Context, img image.Image) ([]types.Candidate, error) {
	var all []types.Candidate
	for _, d := range a.detectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands, err := d.Detect(ctx, img, a.opts)
		if err != nil {
			return nil, fmt.Errorf("detector %s: %w", d.Name(), err)
		}
		for _, c := range cands {
			if c.Source == "" {
				c.Source = d.Name()
			}
			all = append(all, c)
		}
	}
	return all, nil
}

// Names lists the detector names in order
func (a *Aggregator) Names() []string {
	names := make([]string, len(a.detectors))
	for i, d := range a.detectors {
		names[i] = d.Name()
	}
	return names
}

// Len returns the number of detectors
func (a *Aggregator) Len() int {
	return len(a.detectors)
}

// Options returns the inference options applied to every detector
func (a *Aggregator) Options() Options {
	return a.opts
}

// Close releases every detector
func (a *Aggregator) Close() error {
	var err error
	for _, d := range a.detectors {
		err = multierr.Append(err, d.Close())
	}
	return err
}
