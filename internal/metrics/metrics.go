// Package metrics exports execution counters in the Prometheus format.
//
//	m := metrics.New()
//	runner := harness.NewRunner(reg, harness.WithHooks(m.Hooks()))
//	go m.Serve(ctx, ":2112", logger)
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/conform/internal/engine"
)

// Metrics holds the collectors of one process. Each Metrics has its own
// registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Traces     *prometheus.CounterVec
	Steps      *prometheus.CounterVec
	Mismatches *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Traces: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conform_traces_total",
				Help: "Traces replayed, by final status",
			},
			[]string{"test", "status"},
		),
		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conform_steps_total",
				Help: "Steps applied and checked successfully",
			},
			[]string{"test", "action"},
		),
		Mismatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conform_mismatches_total",
				Help: "State mismatches, by first mismatching participant",
			},
			[]string{"test", "participant"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conform_trace_duration_seconds",
				Help:    "Wall time of one trace replay",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"test"},
		),
	}
	m.registry.MustRegister(m.Traces, m.Steps, m.Mismatches, m.Duration)
	return m
}

// Hooks returns executor hooks that feed the collectors.
func (m *Metrics) Hooks() engine.Hooks {
	return engine.Hooks{
		OnStep: func(test string, _ int, _ int, action string) {
			m.Steps.WithLabelValues(test, action).Inc()
		},
		OnTraceDone: func(test string, r engine.TraceResult) {
			m.Traces.WithLabelValues(test, string(r.Status)).Inc()
			m.Duration.WithLabelValues(test).Observe(r.Duration.Seconds())
			if r.Status == engine.StatusFailed && r.Participant != "" {
				m.Mismatches.WithLabelValues(test, r.Participant).Inc()
			}
		},
	}
}

// Handler serves the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
