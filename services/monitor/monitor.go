// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor coordinates the data-quality pipeline: gather findings
// from every detector, decide via the rule engine, act via the executor,
// and append the cycle to the audit history.
//
// # State Machine
//
// A Monitor is IDLE between cycles and walks GATHERING -> DECIDING -> ACTING
// within one. Cycles are strictly serialized: a trigger while a cycle is in
// flight is rejected rather than queued, so overlapping cycles can never
// issue conflicting effects.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/osprey/services/detect"
	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/monitor/engine"
	"github.com/AleutianAI/osprey/services/monitor/executor"
	"github.com/AleutianAI/osprey/services/monitor/history"
	"github.com/AleutianAI/osprey/services/monitor/observability"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Monitor
// =============================================================================

// Monitor runs the gather/decide/act pipeline over a fixed detector set.
type Monitor struct {
	detectors []detect.Detector
	engine    *engine.Engine
	executor  *executor.Executor
	store     history.Store
	metrics   *observability.MonitorMetrics

	// gatherTimeout bounds each detector's observation pass.
	gatherTimeout time.Duration

	runMu sync.Mutex // serializes cycles

	phaseMu sync.RWMutex
	phase   datatypes.Phase
}

// NewMonitor wires the pipeline. At least one detector is required; a
// monitor with no signal sources could only ever emit invariant violations.
func NewMonitor(detectors []detect.Detector, eng *engine.Engine, exec *executor.Executor,
	store history.Store, metrics *observability.MonitorMetrics, gatherTimeout time.Duration) (*Monitor, error) {

	if len(detectors) == 0 {
		return nil, fmt.Errorf("monitor: at least one detector is required")
	}
	if eng == nil || exec == nil || store == nil {
		return nil, fmt.Errorf("monitor: engine, executor and store are required")
	}
	if gatherTimeout <= 0 {
		gatherTimeout = 60 * time.Second
	}
	return &Monitor{
		detectors:     detectors,
		engine:        eng,
		executor:      exec,
		store:         store,
		metrics:       metrics,
		gatherTimeout: gatherTimeout,
		phase:         datatypes.PhaseIdle,
	}, nil
}

// Phase reports the monitor's current pipeline phase.
func (m *Monitor) Phase() datatypes.Phase {
	m.phaseMu.RLock()
	defer m.phaseMu.RUnlock()
	return m.phase
}

func (m *Monitor) setPhase(p datatypes.Phase) {
	m.phaseMu.Lock()
	m.phase = p
	m.phaseMu.Unlock()
}

// RunCycle executes one full monitoring cycle and returns its record.
//
// Every cycle that starts produces a Decision and a history record, with
// one exception: an engine invariant violation aborts before acting, is
// recorded nowhere, and surfaces as an error for the operator to treat as a
// bug report. A second concurrent trigger returns ErrCycleInProgress.
func (m *Monitor) RunCycle(ctx context.Context) (history.Record, error) {
	if !m.runMu.TryLock() {
		return history.Record{}, datatypes.ErrCycleInProgress
	}
	defer m.runMu.Unlock()
	defer m.setPhase(datatypes.PhaseIdle)

	start := time.Now()
	slog.Info("monitoring cycle started")

	m.setPhase(datatypes.PhaseGathering)
	findings := m.gather(ctx)

	m.setPhase(datatypes.PhaseDeciding)
	decision, err := m.engine.Decide(findings)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordCycle(false, time.Since(start))
		}
		slog.Error("decision engine invariant violation", "error", err)
		return history.Record{}, err
	}
	if m.metrics != nil {
		m.metrics.RecordDecision(string(decision.Action), decision.RuleID, decision.Score)
	}
	slog.Info("decision made",
		"decision_id", decision.ID,
		"action", decision.Action,
		"priority", decision.Priority,
		"score", decision.Score,
		"confidence", decision.Confidence,
		"rule", decision.RuleID,
	)

	m.setPhase(datatypes.PhaseActing)
	effects, err := m.executor.Execute(ctx, decision)
	if err != nil {
		// Only an unmapped action reaches here; still an engine bug.
		if m.metrics != nil {
			m.metrics.RecordCycle(false, time.Since(start))
		}
		return history.Record{}, err
	}
	if m.metrics != nil {
		for _, eff := range effects {
			m.metrics.RecordEffect(string(eff.Kind), string(eff.Status))
		}
	}

	rec := history.Record{Decision: decision, Effects: effects}
	if err := m.store.Append(ctx, rec); err != nil {
		// The decision was made and acted on; losing the audit record is
		// worth surfacing loudly but does not undo the cycle.
		slog.Error("failed to append cycle to audit history", "error", err)
	}

	if m.metrics != nil {
		m.metrics.RecordCycle(true, time.Since(start))
	}
	slog.Info("monitoring cycle completed",
		"decision_id", decision.ID,
		"effects", len(effects),
		"duration", time.Since(start).String(),
	)
	return rec, nil
}

// gather runs every detector concurrently and returns one Finding per
// detector, in registration order. A detector error or timeout becomes a
// source-unavailable Finding so the cycle still reaches a decision.
func (m *Monitor) gather(ctx context.Context) []datatypes.Finding {
	findings := make([]datatypes.Finding, len(m.detectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range m.detectors {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, m.gatherTimeout)
			defer cancel()

			started := time.Now()
			f, err := d.Detect(dctx)
			if m.metrics != nil {
				m.metrics.RecordDetector(string(d.Source()), time.Since(started), err != nil)
			}
			if err != nil {
				slog.Warn("detector failed, substituting unavailable finding",
					"source", d.Source(), "error", err)
				findings[i] = datatypes.Unavailable(d.Source(), err)
				return nil
			}
			if verr := f.Validate(); verr != nil {
				slog.Warn("detector produced invalid finding, substituting unavailable",
					"source", d.Source(), "error", verr)
				findings[i] = datatypes.Unavailable(d.Source(), verr)
				return nil
			}
			findings[i] = f
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures become findings

	return findings
}

// Resume re-enables the ingestion connector via the executor's idempotent
// path, for the operator-facing resume endpoint.
func (m *Monitor) Resume(ctx context.Context) (datatypes.Effect, error) {
	return m.executor.Resume(ctx)
}

// ConnectorPaused reports the connector's current sync state.
func (m *Monitor) ConnectorPaused(ctx context.Context) (bool, error) {
	return m.executor.SourcePaused(ctx)
}

// History exposes the audit store for read endpoints.
func (m *Monitor) History() history.Store { return m.store }

// Engine exposes the decision engine for config reload and diagnostics.
func (m *Monitor) Engine() *engine.Engine { return m.engine }
