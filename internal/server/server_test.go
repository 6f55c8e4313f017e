package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/object-scanner/internal/monitor"
	"github.com/menta2k/object-scanner/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFrames struct {
	res *types.DetectionResult
	err error
	got []byte
}

func (f *fakeFrames) Submit(ctx context.Context, data []byte) (*types.DetectionResult, error) {
	f.got = data
	return f.res, f.err
}

type fakeDescriber struct {
	rec  *types.DescriptionRecord
	err  error
	mime string
}

func (f *fakeDescriber) Describe(ctx context.Context, image []byte, mimeType string) (*types.DescriptionRecord, error) {
	f.mime = mimeType
	return f.rec, f.err
}

func upload(t *testing.T, path, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="frame.bin"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestRoot(t *testing.T) {
	s := New(Config{}, &fakeFrames{}, nil, nil, nil)
	rec, body := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RootMessage, body["message"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDPassthrough(t *testing.T) {
	s := New(Config{}, &fakeFrames{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec, _ := serve(s, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestPreflight(t *testing.T) {
	s := New(Config{}, &fakeFrames{}, nil, nil, nil)
	rec, _ := serve(s, httptest.NewRequest(http.MethodOptions, "/detect", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealth(t *testing.T) {
	s := New(Config{Detectors: []string{"yolov8s", "general"}}, &fakeFrames{}, nil, nil, nil)
	_, body := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"yolov8s", "general"}, body["detectors"])
}

func TestDetectFound(t *testing.T) {
	frames := &fakeFrames{res: &types.DetectionResult{
		Found: true, Label: "backpack", Color: "Blue", Image: []byte{0xff, 0xd8, 0xff},
	}}
	s := New(Config{}, frames, nil, nil, nil)

	rec, body := serve(s, upload(t, "/detect", "image/jpeg", []byte("frame"), map[string]string{"client_id": "phone-1"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "backpack", body["label"])
	assert.Equal(t, "Blue", body["color"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff}), body["image_base64"])
	assert.Equal(t, []byte("frame"), frames.got)
}

func TestDetectNotFound(t *testing.T) {
	s := New(Config{}, &fakeFrames{res: types.NotFound()}, nil, nil, nil)
	_, body := serve(s, upload(t, "/detect", "", []byte("frame"), nil))
	assert.Equal(t, false, body["found"])
}

func TestDetectErrorsStay200(t *testing.T) {
	tests := []struct {
		name   string
		frames *fakeFrames
		data   []byte
		want   string
	}{
		{"missing file", &fakeFrames{}, nil, "no file uploaded"},
		{"empty file", &fakeFrames{}, []byte{}, "uploaded file is empty"},
		{"pipeline error", &fakeFrames{err: errors.New("failed to decode image")}, []byte("x"), "failed to decode image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{}, tt.frames, nil, nil, nil)
			rec, body := serve(s, upload(t, "/detect", "", tt.data, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, body["error"])
		})
	}
}

func TestAnalyze(t *testing.T) {
	d := &fakeDescriber{rec: &types.DescriptionRecord{
		Label: "Wallet", Color: "Brown", Description: "A leather wallet",
		Tags: []string{"wallet"}, LocationContext: "Indoor", Sensitive: "Sensitive",
	}}
	s := New(Config{}, &fakeFrames{}, d, nil, nil)

	_, body := serve(s, upload(t, "/analyze", "image/webp", []byte("img"), nil))
	assert.Equal(t, true, body["success"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Wallet", data["label"])
	assert.Equal(t, "Sensitive", data["sensitive"])
	assert.Equal(t, "image/webp", d.mime)
}

func TestAnalyzeSniffsContentType(t *testing.T) {
	d := &fakeDescriber{rec: types.BlockedDescription()}
	s := New(Config{}, &fakeFrames{}, d, nil, nil)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	_, body := serve(s, upload(t, "/analyze", "", png, nil))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "image/png", d.mime)
}

func TestAnalyzeErrors(t *testing.T) {
	s := New(Config{}, &fakeFrames{}, &fakeDescriber{err: errors.New("invalid JSON from model")}, nil, nil)
	rec, body := serve(s, upload(t, "/analyze", "image/jpeg", []byte("img"), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "invalid JSON from model", body["error"])

	_, body = serve(s, upload(t, "/analyze", "", nil, nil))
	assert.Equal(t, "no file uploaded", body["error"])

	unconfigured := New(Config{}, &fakeFrames{}, nil, nil, nil)
	_, body = serve(unconfigured, upload(t, "/analyze", "image/jpeg", []byte("img"), nil))
	assert.Equal(t, false, body["success"])
}

func TestMetricsRoute(t *testing.T) {
	m := monitor.New()
	s := New(Config{}, &fakeFrames{res: types.NotFound()}, nil, m, nil)

	serve(s, upload(t, "/detect", "", []byte("x"), nil))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `object_scanner_http_requests_total{route="/detect",status="200"} 1`)
}

func TestUploadLimit(t *testing.T) {
	s := New(Config{MaxUploadMB: 1}, &fakeFrames{res: types.NotFound()}, nil, nil, nil)
	big := bytes.Repeat([]byte{1}, 2<<20)

	rec, body := serve(s, upload(t, "/detect", "", big, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no file uploaded", body["error"])
}

func TestRunShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, &fakeFrames{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}
