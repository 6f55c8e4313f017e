package detection

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newInferenceServer(t *testing.T, detections []remoteDetection) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("conf") == "" {
			http.Error(w, "missing conf", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(remoteResponse{Detections: detections})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadSkipsMissingModels(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	_, err := Load(context.Background(), []Spec{
		{Name: "a", Backend: BackendONNX, Path: filepath.Join(t.TempDir(), "missing.onnx")},
		{Name: "b", Path: filepath.Join(t.TempDir(), "also-missing.onnx")},
	}, DefaultOptions(), logger)

	assert.ErrorIs(t, err, ErrNoDetectors)
	assert.Equal(t, 2, logs.FilterMessage("skipping detector").Len())
}

func TestLoadUnknownBackend(t *testing.T) {
	_, err := Load(context.Background(), []Spec{{Name: "x", Backend: "tensorrt"}}, DefaultOptions(), nil)
	assert.ErrorIs(t, err, ErrNoDetectors)
}

func TestLoadKeepsUsableDetectorsInOrder(t *testing.T) {
	srv := newInferenceServer(t, nil)

	agg, err := Load(context.Background(), []Spec{
		{Name: "first", Backend: BackendRemote, URL: srv.URL + "/predict"},
		{Name: "gone", Backend: BackendONNX, Path: filepath.Join(t.TempDir(), "gone.onnx")},
		{Name: "second", Backend: BackendRemote, URL: srv.URL + "/predict"},
	}, DefaultOptions(), nil)
	require.NoError(t, err)
	defer agg.Close()

	assert.Equal(t, []string{"first", "second"}, agg.Names())
}

func TestLoadRemoteUnhealthyStillLoads(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	agg, err := Load(context.Background(), []Spec{
		{Name: "remote", Backend: BackendRemote, URL: srv.URL + "/predict"},
	}, DefaultOptions(), zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Len())
	assert.Equal(t, 1, logs.FilterMessage("inference service not reachable, continuing").Len())
}

func TestLoadDefaultsWhenNoSpecs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	_, err := Load(context.Background(), nil, DefaultOptions(), zap.New(core))
	if err == nil {
		t.Skip("default model present in working directory")
	}
	assert.ErrorIs(t, err, ErrNoDetectors)

	entries := logs.FilterMessage("skipping detector").All()
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultModelPath, entries[0].ContextMap()["path"])
}

func TestRemoteDetector(t *testing.T) {
	srv := newInferenceServer(t, []remoteDetection{
		{X1: 10, Y1: 10, X2: 50, Y2: 60, Label: "backpack", Confidence: 0.91},
		{X1: 0, Y1: 0, X2: 5, Y2: 5, Label: "cup", Confidence: 0.2},
		{X1: -10, Y1: 20, X2: 200, Y2: 90, Label: "umbrella", Confidence: 0.6},
	})

	d, err := NewRemoteDetector("remote", srv.URL+"/predict", 0)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})

	cands, err := d.Detect(context.Background(), img, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, "backpack", cands[0].Label)
	assert.Equal(t, "remote", cands[0].Source)
	assert.InDelta(t, 0.91, cands[0].Confidence, 1e-9)

	assert.Equal(t, "umbrella", cands[1].Label)
	assert.Equal(t, 0.0, cands[1].Box.X1)
	assert.Equal(t, 100.0, cands[1].Box.X2)
	assert.Equal(t, 80.0, cands[1].Box.Y2)

	assert.NoError(t, d.CheckHealth(context.Background()))
	assert.NoError(t, d.Close())
}

func TestRemoteDetectorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, err := NewRemoteDetector("remote", srv.URL, 0)
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Error(t, d.CheckHealth(context.Background()))
}

func TestNewRemoteDetectorInvalidURL(t *testing.T) {
	_, err := NewRemoteDetector("x", "not a url", 0)
	assert.Error(t, err)

	d, err := NewRemoteDetector("", "http://inference.local:9000/predict", 0)
	require.NoError(t, err)
	assert.Equal(t, "inference.local:9000", d.Name())
}

func TestSpecsFromPaths(t *testing.T) {
	specs := SpecsFromPaths([]string{" models/a.onnx", "", "models/b.onnx "})
	require.Len(t, specs, 2)
	assert.Equal(t, Spec{Backend: BackendONNX, Path: "models/a.onnx"}, specs[0])
	assert.Equal(t, "models/b.onnx", specs[1].Path)
}
