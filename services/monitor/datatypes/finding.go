// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire and domain types shared by the Osprey
// monitor: detector findings, engine decisions, and executor effects.
//
// All three types are immutable once produced. Findings live for a single
// evaluation cycle; Decisions and Effects are persisted to the audit history.
package datatypes

import (
	"fmt"
	"time"
)

// =============================================================================
// Detector Sources
// =============================================================================

// Source identifies which detector produced a Finding.
type Source string

const (
	// SourceSchema is the structural-diff detector (schema drift).
	SourceSchema Source = "SCHEMA"

	// SourceSemantic is the LLM-backed semantic anomaly detector.
	SourceSemantic Source = "SEMANTIC"
)

// Valid reports whether the source is a known detector identity.
func (s Source) Valid() bool {
	return s == SourceSchema || s == SourceSemantic
}

// =============================================================================
// Severity Hints
// =============================================================================

// SeverityHint is a detector's own severity estimate. It is advisory input to
// the decision engine, not the engine's authoritative priority.
type SeverityHint string

const (
	SeverityCritical SeverityHint = "CRITICAL"
	SeverityHigh     SeverityHint = "HIGH"
	SeverityMedium   SeverityHint = "MEDIUM"
	SeverityLow      SeverityHint = "LOW"
	SeverityNone     SeverityHint = "NONE"
)

// Valid reports whether the hint is part of the fixed vocabulary.
func (h SeverityHint) Valid() bool {
	switch h {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityNone:
		return true
	}
	return false
}

// CategorySourceUnavailable marks a synthetic Finding substituted for a
// detector that failed to produce one.
const CategorySourceUnavailable = "source_unavailable"

// =============================================================================
// Finding
// =============================================================================

// Finding is a single detector's report for one evaluation cycle.
//
// # Description
//
// Each registered detector produces exactly one Finding per cycle, including
// an explicit "no detection" Finding when it found nothing, so absence of
// signal is never implicit. Findings are created fresh per cycle and are
// never referenced by a later cycle; only the Decision they fed into (which
// embeds them) persists.
//
// # Fields
//
//   - Source: which detector produced the report.
//   - Detected: whether the detector found an issue at all.
//   - Confidence: detector's self-reported certainty in [0,1]. Deterministic
//     detectors report 1.0 when Detected; probabilistic detectors vary.
//   - SeverityHint: the detector's own severity estimate.
//   - Category: free-form tag used for rule matching ("type_change",
//     "test_data", "temporal", ...).
//   - AffectedCount: number of records or columns implicated.
//   - AffectedIDs: record identifiers implicated, when known. Drives
//     quarantine scoping and rollback generation.
//   - Evidence: human-readable justification, preserved verbatim into the
//     Decision for audit.
type Finding struct {
	Source        Source       `json:"source"`
	Detected      bool         `json:"detected"`
	Confidence    float64      `json:"confidence"`
	SeverityHint  SeverityHint `json:"severity_hint"`
	Category      string       `json:"category,omitempty"`
	AffectedCount int          `json:"affected_count"`
	AffectedIDs   []string     `json:"affected_ids,omitempty"`
	Evidence      []string     `json:"evidence,omitempty"`
	ObservedAt    time.Time    `json:"observed_at"`
}

// Validate checks the Finding against the boundary contract. Detector
// payloads are validated here so malformed output becomes a source failure
// instead of propagating untyped data into the decision engine.
func (f Finding) Validate() error {
	if !f.Source.Valid() {
		return fmt.Errorf("finding: unknown source %q", f.Source)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("finding: confidence %v outside [0,1]", f.Confidence)
	}
	if !f.SeverityHint.Valid() {
		return fmt.Errorf("finding: unknown severity hint %q", f.SeverityHint)
	}
	if f.AffectedCount < 0 {
		return fmt.Errorf("finding: negative affected count %d", f.AffectedCount)
	}
	return nil
}

// NoDetection returns the explicit clean Finding for a source.
func NoDetection(source Source) Finding {
	return Finding{
		Source:       source,
		Detected:     false,
		Confidence:   0,
		SeverityHint: SeverityNone,
		ObservedAt:   time.Now().UTC(),
	}
}

// Unavailable returns the synthetic Finding substituted when a detector
// could not produce one. The cycle still reaches a Decision; the failure is
// visible in the Finding set rather than aborting the run.
func Unavailable(source Source, err error) Finding {
	f := NoDetection(source)
	f.Category = CategorySourceUnavailable
	if err != nil {
		f.Evidence = []string{fmt.Sprintf("detector unavailable: %v", err)}
	}
	return f
}
