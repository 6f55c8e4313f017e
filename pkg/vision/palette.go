package vision

import "math"

// NamedColor is a palette entry with its reference RGB triple
type NamedColor struct {
	Name    string
	R, G, B uint8
}

// Palette is an ordered list of reference colors. Order matters: when two
// entries are equally close to a sample, the earlier one wins.
type Palette []NamedColor

// DefaultPalette returns the sixteen reference colors used for classification
func DefaultPalette() Palette {
	return Palette{
		{"Red", 255, 0, 0},
		{"Green", 0, 255, 0},
		{"Blue", 0, 0, 255},
		{"Yellow", 255, 255, 0},
		{"Cyan", 0, 255, 255},
		{"Magenta", 255, 0, 255},
		{"White", 255, 255, 255},
		{"Black", 0, 0, 0},
		{"Gray", 128, 128, 128},
		{"Orange", 255, 165, 0},
		{"Purple", 128, 0, 128},
		{"Pink", 255, 192, 203},
		{"Brown", 165, 42, 42},
		{"Beige", 245, 245, 220},
		{"Navy", 0, 0, 128},
		{"Teal", 0, 128, 128},
	}
}

// Classify returns the name of the palette entry nearest to (r,g,b) in RGB space
func (p Palette) Classify(r, g, b uint8) string {
	closest := "Unknown"
	minDist := math.Inf(1)
	for _, c := range p {
		d := distance(r, g, b, c.R, c.G, c.B)
		if d < minDist {
			minDist = d
			closest = c.Name
		}
	}
	return closest
}

// Names lists the palette names in order
func (p Palette) Names() []string {
	names := make([]string, len(p))
	for i, c := range p {
		names[i] = c.Name
	}
	return names
}

func distance(r1, g1, b1, r2, g2, b2 uint8) float64 {
	dr := float64(r1) - float64(r2)
	dg := float64(g1) - float64(g2)
	db := float64(b1) - float64(b2)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
