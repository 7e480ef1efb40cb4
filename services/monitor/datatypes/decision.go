// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Actions
// =============================================================================

// Action is the decision engine's remediation verdict. The vocabulary is
// fixed; the executor defines a total mapping from every Action to a
// (possibly empty) Effect sequence.
type Action string

const (
	// ActionContinue means all systems operational, nothing to do.
	ActionContinue Action = "CONTINUE"

	// ActionLogAndContinue records the cycle with elevated audit weight but
	// performs no external effect.
	ActionLogAndContinue Action = "LOG_AND_CONTINUE"

	// ActionFlagForReview notifies operators without touching the pipeline.
	ActionFlagForReview Action = "FLAG_FOR_REVIEW"

	// ActionPauseAndAlert pauses upstream ingestion and notifies.
	ActionPauseAndAlert Action = "PAUSE_AND_ALERT"

	// ActionQuarantineAndFlag moves suspect records to quarantine and
	// notifies, leaving ingestion running.
	ActionQuarantineAndFlag Action = "QUARANTINE_AND_FLAG"

	// ActionQuarantineAndPause quarantines, pauses ingestion, emits a
	// rollback script, and notifies.
	ActionQuarantineAndPause Action = "QUARANTINE_AND_PAUSE"

	// ActionEmergencyPause is QUARANTINE_AND_PAUSE with the pause issued
	// first to minimize the exposure window.
	ActionEmergencyPause Action = "EMERGENCY_PAUSE"
)

// Priority is the engine-derived urgency of a Decision.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// =============================================================================
// Decision
// =============================================================================

// Decision is the engine's single authoritative output for one cycle.
//
// # Description
//
// Exactly one Decision is produced per cycle. The action is a deterministic
// function of the Finding set and the fixed rule table: same inputs, same
// Decision, no hidden randomness (the ID and timestamp are assigned by the
// caller, not the rule walk). Decisions are immutable after creation and are
// appended to the audit history together with their Effects.
//
// # Fields
//
//   - ID: unique decision identifier (UUID).
//   - Timestamp: when the decision was made (UTC).
//   - Action: the selected remediation action.
//   - Priority: derived urgency.
//   - Score: 0-100 severity score used for rule matching and ordering.
//   - Confidence: max confidence across the Findings that contributed to the
//     winning rule. A single high-confidence signal is never diluted by
//     low-confidence co-signals.
//   - RuleID: identifier of the matched rule, first entry of Reasoning.
//   - Reasoning: matched rule id followed by each contributing Finding's
//     evidence, in Finding order.
//   - Inputs: the exact Finding set considered, kept for reproducibility.
type Decision struct {
	ID         string    `json:"decision_id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Priority   Priority  `json:"priority"`
	Score      int       `json:"severity_score"`
	Confidence float64   `json:"confidence"`
	RuleID     string    `json:"rule_id"`
	Reasoning  []string  `json:"reasoning"`
	Inputs     []Finding `json:"inputs"`
}

// RequiresAction reports whether the executor has any external work to do.
// CONTINUE and LOG_AND_CONTINUE expand to an empty Effect sequence.
func (d Decision) RequiresAction() bool {
	return d.Action != ActionContinue && d.Action != ActionLogAndContinue
}
