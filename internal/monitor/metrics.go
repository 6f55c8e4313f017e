package monitor

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const namespace = "object_scanner"

// Metrics owns a private registry with the service's collectors. It
// satisfies pipeline.Observer.
type Metrics struct {
	registry *prometheus.Registry

	frames     *prometheus.CounterVec
	frameTime  prometheus.Histogram
	candidates prometheus.Histogram
	requests   *prometheus.CounterVec
	queueDepth prometheus.Gauge
	memUsage   prometheus.Gauge
	cpuUsage   prometheus.Gauge

	proc *process.Process
}

// New creates the collectors and registers them
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames processed by outcome",
		}, []string{"outcome"}),
		frameTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Time spent processing one frame",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_candidates",
			Help:      "Detections aggregated per frame",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Frames waiting for a worker",
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_megabytes",
			Help:      "Resident memory of the process in megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_usage_percent",
			Help:      "CPU usage of the process in percent",
		}),
	}

	m.registry.MustRegister(m.frames, m.frameTime, m.candidates, m.requests,
		m.queueDepth, m.memUsage, m.cpuUsage)
	return m
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFrame records one pipeline run
func (m *Metrics) ObserveFrame(outcome string, elapsed time.Duration) {
	m.frames.WithLabelValues(outcome).Inc()
	m.frameTime.Observe(elapsed.Seconds())
}

// ObserveCandidates records how many detections a frame produced
func (m *Metrics) ObserveCandidates(n int) {
	m.candidates.Observe(float64(n))
}

// ObserveRequest counts one HTTP request
func (m *Metrics) ObserveRequest(route, status string) {
	m.requests.WithLabelValues(route, status).Inc()
}

// SetQueueDepth updates the pending frame gauge
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SampleProcess reads memory and CPU usage for the current process once
func (m *Metrics) SampleProcess() error {
	if m.proc == nil {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}
		m.proc = p
	}

	mem, err := m.proc.MemoryInfo()
	if err != nil {
		return err
	}
	m.memUsage.Set(float64(mem.RSS / 1024 / 1024))

	cpu, err := m.proc.CPUPercent()
	if err != nil {
		return err
	}
	m.cpuUsage.Set(cpu)
	return nil
}

// Run samples process usage every interval until ctx is done. The optional
// depth function feeds the queue depth gauge on the same tick.
func (m *Metrics) Run(ctx context.Context, interval time.Duration, depth func() int, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.SampleProcess(); err != nil {
			logger.Debug("process sample failed", zap.Error(err))
		}
		if depth != nil {
			m.SetQueueDepth(depth())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
