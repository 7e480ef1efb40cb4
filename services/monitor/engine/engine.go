// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the deterministic decision engine: a fixed,
// ordered rule table evaluated first-match-wins over the cycle's Findings.
//
// # Description
//
// The engine is pure. It performs no I/O, holds no mutable cycle state, and
// never blocks; everything a rule can look at is computed up front from the
// Finding slice and the Config. Given the same Findings and Config it always
// selects the same rule, score, confidence, and reasoning.
//
// # Inputs
//
// A non-empty slice of Findings, one per registered detector. An empty slice
// is a wiring bug upstream and yields an InvariantViolation, never a silent
// CONTINUE.
//
// # Outputs
//
// Exactly one Decision per call. The final catch-all rule matches any input,
// so the mapping is total.
//
// # Limitations
//
// Rule ordering is compiled in. Only the numeric thresholds and weights are
// configurable; reordering rules means changing this package.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/google/uuid"
)

// =============================================================================
// Engine
// =============================================================================

// Engine evaluates Finding sets against the rule table. Safe for concurrent
// use; Reload swaps the config atomically between cycles.
type Engine struct {
	cfg atomic.Pointer[Config]
}

// New builds an Engine. A nil cfg uses DefaultConfig().
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config rejected: %w", err)
	}
	e := &Engine{}
	e.cfg.Store(cfg)
	return e, nil
}

// Reload swaps in a new rule config. In-flight evaluations keep the config
// they started with.
func (e *Engine) Reload(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine config rejected: %w", err)
	}
	e.cfg.Store(cfg)
	slog.Info("decision engine rule config reloaded")
	return nil
}

// Config returns the currently active rule config.
func (e *Engine) Config() *Config {
	return e.cfg.Load()
}

// =============================================================================
// Evaluation State
// =============================================================================

// evaluation is the precomputed view of one Finding set that rules match on.
type evaluation struct {
	cfg      *Config
	findings []datatypes.Finding

	score         int
	schemaScore   int
	semanticScore int

	schemaDetected   bool
	semanticDetected bool
	schemaCritical   bool

	// semanticConfidence is the max confidence over detected SEMANTIC
	// findings. Confidence-gated rules deliberately ignore schema findings,
	// which always self-report 1.0 and would otherwise trip every gate.
	semanticConfidence float64

	// maxTestDataConfidence is the max confidence over detected test_data
	// findings specifically.
	maxTestDataConfidence float64
}

func newEvaluation(cfg *Config, findings []datatypes.Finding) *evaluation {
	ev := &evaluation{cfg: cfg, findings: findings}

	var semanticRaw float64
	for _, f := range findings {
		if !f.Detected {
			continue
		}
		switch f.Source {
		case datatypes.SourceSchema:
			ev.schemaDetected = true
			ev.schemaScore += cfg.SchemaWeights[f.SeverityHint]
			if f.SeverityHint == datatypes.SeverityCritical {
				ev.schemaCritical = true
			}
		case datatypes.SourceSemantic:
			ev.semanticDetected = true
			semanticRaw += f.Confidence * cfg.categoryWeight(f.Category)
			if f.Confidence > ev.semanticConfidence {
				ev.semanticConfidence = f.Confidence
			}
			if f.Category == "test_data" && f.Confidence > ev.maxTestDataConfidence {
				ev.maxTestDataConfidence = f.Confidence
			}
		}
	}

	ev.semanticScore = int(math.Round(semanticRaw))
	ev.score = ev.schemaScore + ev.semanticScore
	if ev.score > 100 {
		ev.score = 100
	}
	return ev
}

// detected returns the detected findings matching keep, in input order.
func (ev *evaluation) detected(keep func(datatypes.Finding) bool) []datatypes.Finding {
	var out []datatypes.Finding
	for _, f := range ev.findings {
		if f.Detected && keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func anyFinding(datatypes.Finding) bool { return true }

func semanticOnly(f datatypes.Finding) bool { return f.Source == datatypes.SourceSemantic }

func schemaCriticalOnly(f datatypes.Finding) bool {
	return f.Source == datatypes.SourceSchema && f.SeverityHint == datatypes.SeverityCritical
}

func testDataOnly(f datatypes.Finding) bool {
	return f.Source == datatypes.SourceSemantic && f.Category == "test_data"
}

// =============================================================================
// Rule Table
// =============================================================================

// rule is one row of the ordered table. match decides, contributors names the
// findings whose confidence and evidence flow into the Decision, and describe
// renders the human reasoning line.
type rule struct {
	id           string
	action       datatypes.Action
	priority     datatypes.Priority
	match        func(ev *evaluation) bool
	contributors func(ev *evaluation) []datatypes.Finding
	describe     func(ev *evaluation) string
}

// ruleTable is evaluated top to bottom, first match wins. Ordering encodes
// severity: the most drastic response that the evidence supports is taken.
var ruleTable = []rule{
	{
		id:       "emergency-pause",
		action:   datatypes.ActionEmergencyPause,
		priority: datatypes.PriorityCritical,
		match: func(ev *evaluation) bool {
			return ev.score >= ev.cfg.EmergencyScore && ev.schemaDetected && ev.semanticDetected
		},
		contributors: func(ev *evaluation) []datatypes.Finding { return ev.detected(anyFinding) },
		describe: func(ev *evaluation) string {
			return fmt.Sprintf("severity score %d with corroborating schema and semantic detections", ev.score)
		},
	},
	{
		id:       "test-data-quarantine",
		action:   datatypes.ActionQuarantineAndPause,
		priority: datatypes.PriorityCritical,
		match: func(ev *evaluation) bool {
			return ev.maxTestDataConfidence > ev.cfg.TestDataConfidence
		},
		contributors: func(ev *evaluation) []datatypes.Finding { return ev.detected(testDataOnly) },
		describe: func(ev *evaluation) string {
			return fmt.Sprintf("test data detected in production at %.0f%% confidence", ev.maxTestDataConfidence*100)
		},
	},
	{
		id:       "schema-critical-pause",
		action:   datatypes.ActionPauseAndAlert,
		priority: datatypes.PriorityHigh,
		match:    func(ev *evaluation) bool { return ev.schemaCritical },
		contributors: func(ev *evaluation) []datatypes.Finding {
			return ev.detected(schemaCriticalOnly)
		},
		describe: func(ev *evaluation) string {
			return "breaking schema change detected"
		},
	},
	{
		id:       "score-pause",
		action:   datatypes.ActionPauseAndAlert,
		priority: datatypes.PriorityHigh,
		match:    func(ev *evaluation) bool { return ev.score >= ev.cfg.PauseScore },
		contributors: func(ev *evaluation) []datatypes.Finding {
			return ev.detected(anyFinding)
		},
		describe: func(ev *evaluation) string {
			return fmt.Sprintf("combined severity score %d at or above pause threshold", ev.score)
		},
	},
	{
		id:       "high-confidence-quarantine",
		action:   datatypes.ActionQuarantineAndFlag,
		priority: datatypes.PriorityHigh,
		match: func(ev *evaluation) bool {
			return ev.semanticConfidence > ev.cfg.QuarantineConfidence
		},
		contributors: func(ev *evaluation) []datatypes.Finding { return ev.detected(semanticOnly) },
		describe: func(ev *evaluation) string {
			return fmt.Sprintf("semantic anomaly at %.0f%% confidence", ev.semanticConfidence*100)
		},
	},
	{
		id:       "moderate-confidence-review",
		action:   datatypes.ActionFlagForReview,
		priority: datatypes.PriorityMedium,
		match: func(ev *evaluation) bool {
			return ev.semanticConfidence > ev.cfg.ReviewConfidence
		},
		contributors: func(ev *evaluation) []datatypes.Finding { return ev.detected(semanticOnly) },
		describe: func(ev *evaluation) string {
			return fmt.Sprintf("semantic anomaly at %.0f%% confidence, below quarantine threshold", ev.semanticConfidence*100)
		},
	},
	{
		id:       "schema-drift-review",
		action:   datatypes.ActionFlagForReview,
		priority: datatypes.PriorityMedium,
		match: func(ev *evaluation) bool {
			return ev.score >= ev.cfg.ReviewScoreLow && ev.score <= ev.cfg.ReviewScoreHigh
		},
		contributors: func(ev *evaluation) []datatypes.Finding { return ev.detected(anyFinding) },
		describe: func(ev *evaluation) string {
			return fmt.Sprintf("non-breaking drift at severity score %d", ev.score)
		},
	},
	{
		id:       "low-confidence-log",
		action:   datatypes.ActionLogAndContinue,
		priority: datatypes.PriorityLow,
		match: func(ev *evaluation) bool {
			return ev.semanticConfidence > ev.cfg.LogConfidence
		},
		contributors: func(ev *evaluation) []datatypes.Finding { return ev.detected(semanticOnly) },
		describe: func(ev *evaluation) string {
			return fmt.Sprintf("low-confidence anomaly at %.0f%% confidence, logging only", ev.semanticConfidence*100)
		},
	},
	{
		id:           "all-clear",
		action:       datatypes.ActionContinue,
		priority:     datatypes.PriorityLow,
		match:        func(ev *evaluation) bool { return true },
		contributors: func(ev *evaluation) []datatypes.Finding { return nil },
		describe: func(ev *evaluation) string {
			return "all monitors nominal"
		},
	},
}

// =============================================================================
// Decide
// =============================================================================

// Decide evaluates one cycle's Findings and returns the Decision.
//
// The only error path is *datatypes.InvariantViolation: an empty Finding set
// or a malformed Finding that detector validation should have caught. All
// well-formed inputs map to a Decision.
func (e *Engine) Decide(findings []datatypes.Finding) (datatypes.Decision, error) {
	if len(findings) == 0 {
		return datatypes.Decision{}, &datatypes.InvariantViolation{
			Detail: "decide called with empty finding set",
		}
	}
	for i, f := range findings {
		if err := f.Validate(); err != nil {
			return datatypes.Decision{}, &datatypes.InvariantViolation{
				Detail: fmt.Sprintf("finding %d failed validation: %v", i, err),
			}
		}
	}

	cfg := e.cfg.Load()
	ev := newEvaluation(cfg, findings)

	for _, r := range ruleTable {
		if !r.match(ev) {
			continue
		}

		contributors := r.contributors(ev)

		// Confidence is the max over contributors. The no-op catch-all has
		// none; an explicit all-clear is a fully confident statement.
		confidence := 1.0
		if len(contributors) > 0 {
			confidence = 0
			for _, f := range contributors {
				if f.Confidence > confidence {
					confidence = f.Confidence
				}
			}
		}

		reasoning := []string{fmt.Sprintf("%s: %s", r.id, r.describe(ev))}
		for _, f := range contributors {
			reasoning = append(reasoning, f.Evidence...)
		}

		inputs := make([]datatypes.Finding, len(findings))
		copy(inputs, findings)

		return datatypes.Decision{
			ID:         uuid.NewString(),
			Timestamp:  time.Now().UTC(),
			Action:     r.action,
			Priority:   r.priority,
			Score:      ev.score,
			Confidence: confidence,
			RuleID:     r.id,
			Reasoning:  reasoning,
			Inputs:     inputs,
		}, nil
	}

	// Unreachable: all-clear matches unconditionally.
	return datatypes.Decision{}, &datatypes.InvariantViolation{
		Detail: "rule table exhausted without a match",
	}
}
