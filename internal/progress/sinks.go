package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ntanasko/floorsync/internal/listing"
)

// LogSink writes progress updates as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Record implements Sink.
func (s *LogSink) Record(p listing.Progress) {
	s.logger.Info("sync progress",
		zap.Int("percentage", p.Percentage),
		zap.String("status", p.Status),
		zap.Bool("running", p.Running),
	)
}

// PromSink exports the current progress percentage and run state as
// Prometheus gauges.
type PromSink struct {
	percentage prometheus.Gauge
	running    prometheus.Gauge
}

// NewPromSink builds a PromSink and registers its gauges.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	s := &PromSink{
		percentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floorsync",
			Subsystem: "sync",
			Name:      "progress_percentage",
			Help:      "Progress of the current sync run, 0 to 100.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floorsync",
			Subsystem: "sync",
			Name:      "running",
			Help:      "1 while a sync run is in flight.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.percentage, s.running)
	}
	return s
}

// Record implements Sink.
func (s *PromSink) Record(p listing.Progress) {
	s.percentage.Set(float64(p.Percentage))
	if p.Running {
		s.running.Set(1)
	} else {
		s.running.Set(0)
	}
}
