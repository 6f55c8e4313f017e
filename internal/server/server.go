package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/object-scanner/internal/monitor"
	"github.com/menta2k/object-scanner/pkg/types"
)

// RootMessage is returned by GET /
const RootMessage = "UnLost Object Detection API is Running"

// FrameSubmitter runs the detection pipeline on an uploaded frame
type FrameSubmitter interface {
	Submit(ctx context.Context, data []byte) (*types.DetectionResult, error)
}

// Describer produces a description record for an image
type Describer interface {
	Describe(ctx context.Context, image []byte, mimeType string) (*types.DescriptionRecord, error)
}

// Config holds the HTTP server settings
type Config struct {
	Addr            string
	MaxUploadMB     int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Detectors       []string // names reported by /healthz
}

// Server serves the scanner HTTP API
type Server struct {
	config    Config
	engine    *gin.Engine
	frames    FrameSubmitter
	describer Describer
	metrics   *monitor.Metrics
	logger    *zap.Logger
}

// New builds the router. describer and metrics may be nil: /analyze then
// reports that description is not configured and /metrics is not mounted.
func New(config Config, frames FrameSubmitter, describer Describer, metrics *monitor.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 20
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config:    config,
		frames:    frames,
		describer: describer,
		metrics:   metrics,
		logger:    logger,
	}

	r := gin.New()
	r.MaxMultipartMemory = int64(config.MaxUploadMB) << 20
	r.Use(gin.Recovery(), requestID(), s.accessLog(), cors(), s.uploadLimit())

	r.GET("/", s.root)
	r.GET("/healthz", s.health)
	r.POST("/detect", s.detect)
	r.POST("/analyze", s.analyze)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	s.engine = r
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": RootMessage})
}

func (s *Server) health(c *gin.Context) {
	detectors := s.config.Detectors
	if detectors == nil {
		detectors = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "detectors": detectors})
}

func (s *Server) detect(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": "no file uploaded"})
		return
	}
	data, err := readPart(fh)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.frames.Submit(ctx, data)
	if err != nil {
		s.logger.Warn("detect failed",
			zap.String("client_id", c.PostForm("client_id")),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) analyze(c *gin.Context) {
	if s.describer == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "description service is not configured"})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "no file uploaded"})
		return
	}
	data, err := readPart(fh)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	rec, err := s.describer.Describe(ctx, data, mimeType)
	if err != nil {
		s.logger.Warn("analyze failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}
	return data, nil
}
