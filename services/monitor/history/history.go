// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists the per-cycle audit trail: each completed cycle's
// Decision together with the Effects carried out for it, appended as one
// atomic record.
package history

import (
	"context"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
)

// Record is one completed cycle: the Decision and every Effect attempted for
// it. Records are immutable once appended.
type Record struct {
	Decision datatypes.Decision `json:"decision"`
	Effects  []datatypes.Effect `json:"effects"`
}

// Store is the audit trail. Append is atomic: a reader never observes a
// Decision without its Effects.
type Store interface {
	// Append adds one cycle record to the trail.
	Append(ctx context.Context, rec Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Last returns the most recent record, or ok=false when the trail is
	// empty.
	Last(ctx context.Context) (Record, bool, error)

	// Count returns the number of records currently retained.
	Count(ctx context.Context) (int, error)

	Close() error
}
