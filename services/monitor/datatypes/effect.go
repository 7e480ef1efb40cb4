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

import (
	"fmt"
	"time"
)

// =============================================================================
// Effects
// =============================================================================

// EffectKind is a single side-effecting operation class.
type EffectKind string

const (
	EffectPauseSource       EffectKind = "PAUSE_SOURCE"
	EffectResumeSource      EffectKind = "RESUME_SOURCE"
	EffectQuarantineRecords EffectKind = "QUARANTINE_RECORDS"
	EffectGenerateRollback  EffectKind = "GENERATE_ROLLBACK"
	EffectNotify            EffectKind = "NOTIFY"
)

// EffectStatus is the terminal state of one Effect attempt.
type EffectStatus string

const (
	EffectPending   EffectStatus = "PENDING"
	EffectSucceeded EffectStatus = "SUCCEEDED"
	EffectFailed    EffectStatus = "FAILED"
	EffectSkipped   EffectStatus = "SKIPPED"
)

// Effect records one attempted side effect carried out for a Decision.
//
// A Decision expands to 0-4 Effects. Each Effect is attempted independently
// and its outcome recorded regardless of its siblings, so partial success is
// representable. The idempotency key is derived from (decision id, kind):
// re-executing the same Decision never double-pauses or double-quarantines.
type Effect struct {
	Kind           EffectKind   `json:"kind"`
	Status         EffectStatus `json:"status"`
	IdempotencyKey string       `json:"idempotency_key"`
	Result         string       `json:"result,omitempty"`
	Error          string       `json:"error,omitempty"`
	Attempts       int          `json:"attempts"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    time.Time    `json:"completed_at"`
}

// IdempotencyKey derives the stable key for one Effect of a Decision.
func IdempotencyKey(decisionID string, kind EffectKind) string {
	return fmt.Sprintf("%s:%s", decisionID, kind)
}
