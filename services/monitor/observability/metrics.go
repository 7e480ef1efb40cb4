// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the monitor.
//
// # Description
//
// Metrics cover the cycle pipeline end to end: cycles run, decisions by
// action and rule, effects by kind and status, detector latency and
// failures. Exposed on /metrics for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "osprey"

// Subsystem for monitor metrics
const monitorSubsystem = "monitor"

// MonitorMetrics holds all Prometheus metrics for the decision pipeline.
//
// # Fields
//
//   - CyclesTotal: Counter of completed cycles by outcome
//   - DecisionsTotal: Counter of decisions by action and rule
//   - SeverityScore: Gauge of the most recent cycle's severity score
//   - EffectsTotal: Counter of effects by kind and status
//   - DetectorDurationSeconds: Histogram of per-detector latency
//   - DetectorFailuresTotal: Counter of detector failures by source
//   - CycleDurationSeconds: Histogram of full cycle duration
type MonitorMetrics struct {
	// CyclesTotal counts completed cycles. Labels: outcome (ok, invariant_violation)
	CyclesTotal *prometheus.CounterVec

	// DecisionsTotal counts decisions. Labels: action, rule
	DecisionsTotal *prometheus.CounterVec

	// SeverityScore tracks the last cycle's severity score.
	SeverityScore prometheus.Gauge

	// EffectsTotal counts effects. Labels: kind, status
	EffectsTotal *prometheus.CounterVec

	// DetectorDurationSeconds measures detector latency. Labels: source
	DetectorDurationSeconds *prometheus.HistogramVec

	// DetectorFailuresTotal counts detector failures. Labels: source
	DetectorFailuresTotal *prometheus.CounterVec

	// CycleDurationSeconds measures full cycle duration.
	CycleDurationSeconds prometheus.Histogram
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *MonitorMetrics

// InitMetrics creates and registers all monitor metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *MonitorMetrics {
	DefaultMetrics = &MonitorMetrics{
		CyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: monitorSubsystem,
				Name:      "cycles_total",
				Help:      "Total number of completed monitoring cycles by outcome",
			},
			[]string{"outcome"},
		),

		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: monitorSubsystem,
				Name:      "decisions_total",
				Help:      "Total decisions made by action and matched rule",
			},
			[]string{"action", "rule"},
		),

		SeverityScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: monitorSubsystem,
				Name:      "severity_score",
				Help:      "Severity score of the most recent cycle",
			},
		),

		EffectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: monitorSubsystem,
				Name:      "effects_total",
				Help:      "Total effects executed by kind and status",
			},
			[]string{"kind", "status"},
		),

		DetectorDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: monitorSubsystem,
				Name:      "detector_duration_seconds",
				Help:      "Per-detector observation latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source"},
		),

		DetectorFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: monitorSubsystem,
				Name:      "detector_failures_total",
				Help:      "Total detector failures substituted with unavailable findings",
			},
			[]string{"source"},
		),

		CycleDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: monitorSubsystem,
				Name:      "cycle_duration_seconds",
				Help:      "Full monitoring cycle duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordCycle records one completed cycle.
func (m *MonitorMetrics) RecordCycle(ok bool, duration time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "invariant_violation"
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDurationSeconds.Observe(duration.Seconds())
}

// RecordDecision records a decision and updates the severity gauge.
func (m *MonitorMetrics) RecordDecision(action, rule string, score int) {
	m.DecisionsTotal.WithLabelValues(action, rule).Inc()
	m.SeverityScore.Set(float64(score))
}

// RecordEffect records one effect outcome.
func (m *MonitorMetrics) RecordEffect(kind, status string) {
	m.EffectsTotal.WithLabelValues(kind, status).Inc()
}

// RecordDetector records one detector pass.
func (m *MonitorMetrics) RecordDetector(source string, duration time.Duration, failed bool) {
	m.DetectorDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	if failed {
		m.DetectorFailuresTotal.WithLabelValues(source).Inc()
	}
}
