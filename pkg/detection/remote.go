package detection

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/menta2k/object-scanner/pkg/types"
)

// RemoteDetector forwards frames to an HTTP inference service. The service
// receives a multipart "file" field and answers with
// {"detections":[{"x1","y1","x2","y2","label","confidence"}]} in pixel
// coordinates of the uploaded frame.
type RemoteDetector struct {
	name   string
	url    string
	client *resty.Client
}

type remoteDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// NewRemoteDetector creates a detector backed by the service at endpoint
func NewRemoteDetector(name, endpoint string, timeout time.Duration) (*RemoteDetector, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid inference URL %q", endpoint)
	}
	if name == "" {
		name = u.Host
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RemoteDetector{
		name:   name,
		url:    endpoint,
		client: resty.New().SetTimeout(timeout),
	}, nil
}

// Name returns the detector name
func (d *RemoteDetector) Name() string {
	return d.name
}

// Detect uploads img as JPEG and converts the service's detections into candidates
func (d *RemoteDetector) Detect(ctx context.Context, img image.Image, opts Options) ([]types.Candidate, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	var result remoteResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetFileReader("file", "frame.jpg", &buf).
		SetQueryParams(map[string]string{
			"conf":     strconv.FormatFloat(opts.Confidence, 'f', -1, 64),
			"iou":      strconv.FormatFloat(opts.IoU, 'f', -1, 64),
			"agnostic": strconv.FormatBool(opts.AgnosticNMS),
		}).
		SetResult(&result).
		Post(d.url)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode())
	}

	bounds := img.Bounds()
	cands := make([]types.Candidate, 0, len(result.Detections))
	for _, det := range result.Detections {
		if det.Confidence < opts.Confidence {
			continue
		}
		box := types.Box{X1: det.X1, Y1: det.Y1, X2: det.X2, Y2: det.Y2}
		cands = append(cands, types.Candidate{
			Box:        box.Clamp(bounds.Dx(), bounds.Dy()),
			Label:      det.Label,
			Confidence: det.Confidence,
			Source:     d.name,
		})
	}
	return cands, nil
}

// CheckHealth probes the service's /health endpoint
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	u, err := url.Parse(d.url)
	if err != nil {
		return err
	}
	u.Path = "/health"
	u.RawQuery = ""

	resp, err := d.client.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode())
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-detector resources
func (d *RemoteDetector) Close() error {
	return nil
}
