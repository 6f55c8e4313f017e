package types

import (
	"image"
	"math"
)

// Sentinel values used in response records
const (
	None    = "None"
	Unknown = "Unknown"
)

// Box represents an axis-aligned bounding box in pixel coordinates (x1,y1)-(x2,y2)
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Area returns the area of the box
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the center point of the box
func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Rect truncates the box to integer pixel coordinates
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// Scale multiplies every coordinate by the given factors
func (b Box) Scale(sx, sy float64) Box {
	return Box{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}
}

// Clamp limits the box to the [0,w]x[0,h] frame
func (b Box) Clamp(w, h int) Box {
	fw, fh := float64(w), float64(h)
	return Box{
		X1: math.Max(0, math.Min(b.X1, fw)),
		Y1: math.Max(0, math.Min(b.Y1, fh)),
		X2: math.Max(0, math.Min(b.X2, fw)),
		Y2: math.Max(0, math.Min(b.Y2, fh)),
	}
}

// Candidate is one object found in one frame by one detector invocation
type Candidate struct {
	Box        Box     `json:"box"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"`
}

// DetectionResult is the response record of one frame-processing run.
// Image is marshalled as base64 and is null when nothing was found.
type DetectionResult struct {
	Found bool   `json:"found"`
	Label string `json:"label"`
	Color string `json:"color"`
	Image []byte `json:"image_base64"`
}

// NotFound returns the default record for frames without a winner
func NotFound() *DetectionResult {
	return &DetectionResult{Found: false, Label: None, Color: None}
}

// DescriptionRecord is the structured description returned by the analyze endpoint
type DescriptionRecord struct {
	Label           string   `json:"label"`
	Color           string   `json:"color"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	LocationContext string   `json:"location_context"`
	Sensitive       string   `json:"sensitive"`
}

// BlockedDescription is returned when the model declines to describe an image
func BlockedDescription() *DescriptionRecord {
	return &DescriptionRecord{
		Label:           Unknown,
		Color:           Unknown,
		Description:     "AI could not analyze this image (Safety Block).",
		Tags:            []string{},
		LocationContext: Unknown,
		Sensitive:       "unknown",
	}
}
