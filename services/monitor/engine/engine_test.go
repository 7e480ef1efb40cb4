// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(nil)
	require.NoError(t, err)
	return e
}

func schemaFinding(hint datatypes.SeverityHint, evidence ...string) datatypes.Finding {
	return datatypes.Finding{
		Source:       datatypes.SourceSchema,
		Detected:     true,
		Confidence:   1.0,
		SeverityHint: hint,
		Category:     "schema_drift",
		Evidence:     evidence,
		ObservedAt:   time.Now().UTC(),
	}
}

func semanticFinding(category string, confidence float64, evidence ...string) datatypes.Finding {
	return datatypes.Finding{
		Source:       datatypes.SourceSemantic,
		Detected:     true,
		Confidence:   confidence,
		SeverityHint: datatypes.SeverityHigh,
		Category:     category,
		Evidence:     evidence,
		ObservedAt:   time.Now().UTC(),
	}
}

func TestDecideScenarios(t *testing.T) {
	e := mustEngine(t)

	tests := []struct {
		name         string
		findings     []datatypes.Finding
		wantAction   datatypes.Action
		wantPriority datatypes.Priority
		wantRule     string
		wantScore    int
	}{
		{
			name: "all clean",
			findings: []datatypes.Finding{
				datatypes.NoDetection(datatypes.SourceSchema),
				datatypes.NoDetection(datatypes.SourceSemantic),
			},
			wantAction:   datatypes.ActionContinue,
			wantPriority: datatypes.PriorityLow,
			wantRule:     "all-clear",
			wantScore:    0,
		},
		{
			name: "critical schema change alone",
			findings: []datatypes.Finding{
				schemaFinding(datatypes.SeverityCritical, "column price: FLOAT64 -> STRING"),
				datatypes.NoDetection(datatypes.SourceSemantic),
			},
			wantAction:   datatypes.ActionPauseAndAlert,
			wantPriority: datatypes.PriorityHigh,
			wantRule:     "schema-critical-pause",
			wantScore:    40,
		},
		{
			name: "high confidence test data",
			findings: []datatypes.Finding{
				datatypes.NoDetection(datatypes.SourceSchema),
				semanticFinding("test_data", 0.95, "symbol TEST_AAPL in production feed"),
			},
			wantAction:   datatypes.ActionQuarantineAndPause,
			wantPriority: datatypes.PriorityCritical,
			wantRule:     "test-data-quarantine",
			wantScore:    48,
		},
		{
			name: "corroborated emergency",
			findings: []datatypes.Finding{
				schemaFinding(datatypes.SeverityCritical, "column dropped: volume"),
				semanticFinding("test_data", 1.0, "2400 synthetic rows"),
			},
			wantAction:   datatypes.ActionEmergencyPause,
			wantPriority: datatypes.PriorityCritical,
			wantRule:     "emergency-pause",
			wantScore:    90,
		},
		{
			name: "moderate confidence anomaly",
			findings: []datatypes.Finding{
				datatypes.NoDetection(datatypes.SourceSchema),
				semanticFinding("temporal", 0.75, "timestamps 6h in the future"),
			},
			wantAction:   datatypes.ActionFlagForReview,
			wantPriority: datatypes.PriorityMedium,
			wantRule:     "moderate-confidence-review",
			wantScore:    23,
		},
		{
			name: "non-breaking drift score band",
			findings: []datatypes.Finding{
				schemaFinding(datatypes.SeverityHigh, "column removed: legacy_flag"),
				schemaFinding(datatypes.SeverityLow, "new column: ingestion_tag"),
				datatypes.NoDetection(datatypes.SourceSemantic),
			},
			wantAction:   datatypes.ActionFlagForReview,
			wantPriority: datatypes.PriorityMedium,
			wantRule:     "schema-drift-review",
			wantScore:    30,
		},
		{
			name: "low confidence anomaly logs only",
			findings: []datatypes.Finding{
				datatypes.NoDetection(datatypes.SourceSchema),
				semanticFinding("sentiment", 0.60, "sentiment skew on 3 records"),
			},
			wantAction:   datatypes.ActionLogAndContinue,
			wantPriority: datatypes.PriorityLow,
			wantRule:     "low-confidence-log",
			wantScore:    6,
		},
		{
			name: "semantic source unavailable still decides",
			findings: []datatypes.Finding{
				datatypes.NoDetection(datatypes.SourceSchema),
				datatypes.Unavailable(datatypes.SourceSemantic, assert.AnError),
			},
			wantAction:   datatypes.ActionContinue,
			wantPriority: datatypes.PriorityLow,
			wantRule:     "all-clear",
			wantScore:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Decide(tt.findings)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantPriority, d.Priority)
			assert.Equal(t, tt.wantRule, d.RuleID)
			assert.Equal(t, tt.wantScore, d.Score)
			assert.NotEmpty(t, d.ID)
			assert.Equal(t, tt.findings, d.Inputs)
			require.NotEmpty(t, d.Reasoning)
			assert.Contains(t, d.Reasoning[0], tt.wantRule)
		})
	}
}

func TestDecideDeterministic(t *testing.T) {
	e := mustEngine(t)
	findings := []datatypes.Finding{
		schemaFinding(datatypes.SeverityMedium, "nullability change on ts"),
		semanticFinding("temporal", 0.82, "future timestamps"),
	}

	first, err := e.Decide(findings)
	require.NoError(t, err)

	for range 10 {
		d, err := e.Decide(findings)
		require.NoError(t, err)
		assert.Equal(t, first.Action, d.Action)
		assert.Equal(t, first.Priority, d.Priority)
		assert.Equal(t, first.Score, d.Score)
		assert.Equal(t, first.Confidence, d.Confidence)
		assert.Equal(t, first.RuleID, d.RuleID)
		assert.Equal(t, first.Reasoning, d.Reasoning)
	}
}

func TestDecideConfidenceIsMaxOfContributors(t *testing.T) {
	e := mustEngine(t)

	// Two semantic anomalies: the strong one must not be diluted by the
	// weak one.
	d, err := e.Decide([]datatypes.Finding{
		datatypes.NoDetection(datatypes.SourceSchema),
		semanticFinding("invalid_symbol", 0.55, "symbol ZZZZ unknown"),
		semanticFinding("temporal", 0.90, "timestamps in the future"),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionQuarantineAndFlag, d.Action)
	assert.InDelta(t, 0.90, d.Confidence, 1e-9)
}

func TestDecideScoreClampedTo100(t *testing.T) {
	e := mustEngine(t)

	d, err := e.Decide([]datatypes.Finding{
		schemaFinding(datatypes.SeverityCritical, "type change"),
		schemaFinding(datatypes.SeverityCritical, "partition change"),
		semanticFinding("test_data", 1.0, "synthetic rows"),
	})
	require.NoError(t, err)
	assert.Equal(t, 100, d.Score)
	assert.Equal(t, datatypes.ActionEmergencyPause, d.Action)
}

func TestDecideRuleOrderPrecedence(t *testing.T) {
	e := mustEngine(t)

	// Test data above threshold coexisting with a critical schema change but
	// below the emergency score: the test-data rule outranks the schema rule.
	d, err := e.Decide([]datatypes.Finding{
		schemaFinding(datatypes.SeverityMedium, "nullability change"),
		semanticFinding("test_data", 0.90, "TEST_ prefix rows"),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionQuarantineAndPause, d.Action)
	assert.Equal(t, "test-data-quarantine", d.RuleID)
}

func TestDecideSchemaConfidenceDoesNotTripSemanticGates(t *testing.T) {
	e := mustEngine(t)

	// A lone LOW schema finding self-reports confidence 1.0 but must not
	// reach the confidence-gated quarantine rules.
	d, err := e.Decide([]datatypes.Finding{
		schemaFinding(datatypes.SeverityLow, "new column: note"),
		datatypes.NoDetection(datatypes.SourceSemantic),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionContinue, d.Action)
}

func TestDecideEmptyInputIsInvariantViolation(t *testing.T) {
	e := mustEngine(t)

	_, err := e.Decide(nil)
	require.Error(t, err)
	assert.True(t, datatypes.IsInvariantViolation(err))
}

func TestDecideMalformedFindingIsInvariantViolation(t *testing.T) {
	e := mustEngine(t)

	_, err := e.Decide([]datatypes.Finding{{
		Source:       datatypes.SourceSemantic,
		Detected:     true,
		Confidence:   1.7,
		SeverityHint: datatypes.SeverityHigh,
	}})
	require.Error(t, err)
	assert.True(t, datatypes.IsInvariantViolation(err))
}

func TestConfigLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pause_score: 60\nlog_confidence: 0.4\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.PauseScore)
	assert.Equal(t, 0.4, cfg.LogConfidence)
	// Untouched keys keep their defaults.
	assert.Equal(t, 90, cfg.EmergencyScore)
	assert.Equal(t, 40, cfg.SchemaWeights[datatypes.SeverityCritical])
}

func TestConfigLoadRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quarantine_confidence: 3.0\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestReloadRejectsInvalidConfig(t *testing.T) {
	e := mustEngine(t)

	bad := DefaultConfig()
	bad.EmergencyScore = 400
	require.Error(t, e.Reload(bad))

	// Engine keeps the prior config.
	assert.Equal(t, 90, e.Config().EmergencyScore)
}
