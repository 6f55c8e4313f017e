//go:build gocv
// +build gocv

package detection

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/object-scanner/pkg/types"
)

// classOffset separates boxes of different classes when NMS is per-class
const classOffset = 8192

// ONNXDetector runs a YOLOv8-style ONNX model with the OpenCV DNN module.
// The network output is [1, 4+classes, anchors] with boxes as cx,cy,w,h in
// network input pixels.
type ONNXDetector struct {
	name   string
	labels []string

	mu  sync.Mutex // gocv.Net is not safe for concurrent Forward calls
	net gocv.Net
}

// NewONNXDetector loads the model at spec.Path
func NewONNXDetector(spec Spec) (*ONNXDetector, error) {
	labels := COCONames
	if spec.Labels != "" {
		l, err := LoadLabels(spec.Labels)
		if err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
		labels = l
	}

	net := gocv.ReadNetFromONNX(spec.Path)
	if net.Empty() {
		return nil, fmt.Errorf("read model %s: empty network", spec.Path)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, err
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, err
	}

	return &ONNXDetector{name: spec.Name, labels: labels, net: net}, nil
}

// Name returns the detector name
func (d *ONNXDetector) Name() string {
	return d.name
}

// Detect runs one forward pass and returns NMS-filtered candidates in frame coordinates
func (d *ONNXDetector) Detect(ctx context.Context, img image.Image, opts Options) ([]types.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := imageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	size := opts.InputSize
	if size <= 0 {
		size = DefaultOptions().InputSize
	}
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	rows, anchors := dims[1], dims[2]
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	sx := float64(mat.Cols()) / float64(size)
	sy := float64(mat.Rows()) / float64(size)

	var (
		boxes   []types.Box
		classes []int
		scores  []float32
		rects   []image.Rectangle
	)
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < rows; c++ {
			if s := data[c*anchors+i]; s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || float64(bestScore) < opts.Confidence {
			continue
		}

		cx, cy := float64(data[i]), float64(data[anchors+i])
		w, h := float64(data[2*anchors+i]), float64(data[3*anchors+i])
		box := types.Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}.
			Scale(sx, sy).
			Clamp(mat.Cols(), mat.Rows())

		r := box.Rect()
		if !opts.AgnosticNMS {
			r = r.Add(image.Pt(best*classOffset, best*classOffset))
		}
		boxes = append(boxes, box)
		classes = append(classes, best)
		scores = append(scores, bestScore)
		rects = append(rects, r)
	}
	if len(rects) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(rects, scores, float32(opts.Confidence), float32(opts.IoU))
	cands := make([]types.Candidate, 0, len(keep))
	for _, k := range keep {
		cands = append(cands, types.Candidate{
			Box:        boxes[k],
			Label:      labelFor(d.labels, classes[k]),
			Confidence: float64(scores[k]),
			Source:     d.name,
		})
	}
	return cands, nil
}

// Close releases the network
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// imageToMat converts img to a BGR Mat
func imageToMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) || rgba.Stride != 4*b.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}
