// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lexstream"

// Turn outcomes.
const (
	OutcomeFinished   = "finished"
	OutcomeStopped    = "stopped"
	OutcomeSuperseded = "superseded"
	OutcomeErrored    = "errored"
	OutcomeFailed     = "failed"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics holds the pipeline counters on a private registry.
// All methods are safe on a nil receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	lines         prometheus.Counter
	dropped       prometheus.Counter
	events        *prometheus.CounterVec
	turns         *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	artifacts     *prometheus.CounterVec
	edits         *prometheus.CounterVec
	contextUsage  prometheus.Gauge
	contextTokens prometheus.Gauge
}

// NewMetrics creates and registers the pipeline collectors along with the Go
// runtime collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_lines_total",
			Help:      "Non-blank NDJSON lines framed.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_dropped_lines_total",
			Help:      "Lines discarded as malformed or unknown.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Decoded stream events by kind.",
		}, []string{"kind"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time from request to terminal state.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Reconciled artifacts by result (new or updated).",
		}, []string{"result"}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Edit directives by result (applied or skipped).",
		}, []string{"result"}),
		contextUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_usage_percent",
			Help:      "Last reported context window usage.",
		}),
		contextTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_total_tokens",
			Help:      "Last reported total token count.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.lines,
		m.dropped,
		m.events,
		m.turns,
		m.turnDuration,
		m.artifacts,
		m.edits,
		m.contextUsage,
		m.contextTokens,
	)
	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// =============================================================================
// OBSERVATIONS
// =============================================================================

// ObserveStream adds the framing counts of one stream.
func (m *Metrics) ObserveStream(lines, dropped int) {
	if m == nil {
		return
	}
	m.lines.Add(float64(lines))
	m.dropped.Add(float64(dropped))
}

// ObserveEvent counts one decoded event.
func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// ObserveTurn records a terminal turn outcome and its duration.
func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// ObserveReconcile records the artifact and edit counts of a finished turn.
func (m *Metrics) ObserveReconcile(newArtifacts, updated, applied, skipped int) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues("new").Add(float64(newArtifacts))
	m.artifacts.WithLabelValues("updated").Add(float64(updated))
	m.edits.WithLabelValues("applied").Add(float64(applied))
	m.edits.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveContext stores the latest context window telemetry.
func (m *Metrics) ObserveContext(usagePercent, totalTokens int) {
	if m == nil {
		return
	}
	m.contextUsage.Set(float64(usagePercent))
	m.contextTokens.Set(float64(totalTokens))
}

// =============================================================================
// EXPOSITION
// =============================================================================

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
