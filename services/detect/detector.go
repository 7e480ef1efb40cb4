// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect holds the signal sources feeding the decision engine: the
// deterministic schema drift detector and the LLM-backed semantic detector.
//
// Each detector emits exactly one Finding per cycle. A detector that finds
// nothing returns an explicit no-detection Finding; a detector that cannot
// run returns an error and the orchestrator substitutes a source-unavailable
// Finding in its place.
package detect

import (
	"context"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
)

// Detector is one signal source in the monitoring pipeline.
type Detector interface {
	// Source identifies the detector in Findings and logs.
	Source() datatypes.Source

	// Detect runs one observation pass and reports a single Finding.
	Detect(ctx context.Context) (datatypes.Finding, error)
}
