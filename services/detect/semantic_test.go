// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"testing"

	"github.com/AleutianAI/osprey/services/llm"
	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	reply  string
	err    error
	prompt string
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.prompt = prompt
	return m.reply, m.err
}

func sampleWarehouse() *warehouse.Memory {
	wh := warehouse.NewMemory("record_id")
	wh.SetTable("prices", warehouse.TableMeta{}, []warehouse.Row{
		{"record_id": "r1", "symbol": "AAPL", "price": "182.4"},
		{"record_id": "r2", "symbol": "TEST_AAPL", "price": "1.0"},
	})
	return wh
}

const anomalyReply = `{
  "has_anomalies": true,
  "confidence": 0.95,
  "anomalies": [
    {
      "type": "test_data",
      "severity": "CRITICAL",
      "field": "symbol",
      "evidence": ["symbol TEST_AAPL is a placeholder"],
      "affected_row_count": 1,
      "affected_ids": ["r2"]
    },
    {
      "type": "sentiment",
      "severity": "LOW",
      "field": "sentiment",
      "evidence": ["all sentiment values identical"],
      "affected_row_count": 2,
      "affected_ids": ["r1", "r2"]
    }
  ],
  "summary": "Test data found in production feed"
}`

func TestSemanticDetectAnomalies(t *testing.T) {
	model := &scriptedModel{reply: anomalyReply}
	d := NewSemanticDetector(model, sampleWarehouse(), "prices", 20)

	f, err := d.Detect(context.Background())
	require.NoError(t, err)

	assert.True(t, f.Detected)
	assert.Equal(t, datatypes.SourceSemantic, f.Source)
	assert.Equal(t, 0.95, f.Confidence)
	// Dominant anomaly is the CRITICAL one.
	assert.Equal(t, "test_data", f.Category)
	assert.Equal(t, datatypes.SeverityCritical, f.SeverityHint)
	assert.Equal(t, 3, f.AffectedCount)
	assert.Equal(t, []string{"r2", "r1", "r2"}, f.AffectedIDs)
	require.NotEmpty(t, f.Evidence)
	assert.Equal(t, "Test data found in production feed", f.Evidence[0])

	// The prompt carried the sampled rows and the JSON contract.
	assert.Contains(t, model.prompt, "TEST_AAPL")
	assert.Contains(t, model.prompt, "OUTPUT ONLY VALID JSON")
}

func TestSemanticDetectClean(t *testing.T) {
	model := &scriptedModel{reply: `{"has_anomalies": false, "confidence": 0.0, "anomalies": []}`}
	d := NewSemanticDetector(model, sampleWarehouse(), "prices", 20)

	f, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, f.Detected)
	assert.Equal(t, datatypes.SeverityNone, f.SeverityHint)
}

func TestSemanticDetectStripsCodeFence(t *testing.T) {
	model := &scriptedModel{reply: "Here is the analysis:\n```json\n" + anomalyReply + "\n```\nDone."}
	d := NewSemanticDetector(model, sampleWarehouse(), "prices", 20)

	f, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, f.Detected)
	assert.Equal(t, 0.95, f.Confidence)
}

func TestSemanticDetectRejectsGarbage(t *testing.T) {
	model := &scriptedModel{reply: "I think the data looks fine overall."}
	d := NewSemanticDetector(model, sampleWarehouse(), "prices", 20)

	_, err := d.Detect(context.Background())
	require.Error(t, err)
}

func TestSemanticDetectRejectsOutOfRangeConfidence(t *testing.T) {
	model := &scriptedModel{reply: `{"has_anomalies": true, "confidence": 1.8, "anomalies": []}`}
	d := NewSemanticDetector(model, sampleWarehouse(), "prices", 20)

	_, err := d.Detect(context.Background())
	require.Error(t, err)
}

func TestSemanticDetectModelFailurePropagates(t *testing.T) {
	model := &scriptedModel{err: assert.AnError}
	d := NewSemanticDetector(model, sampleWarehouse(), "prices", 20)

	_, err := d.Detect(context.Background())
	require.Error(t, err)
}

func TestSemanticDetectEmptyTableIsClean(t *testing.T) {
	wh := warehouse.NewMemory("record_id")
	wh.SetTable("prices", warehouse.TableMeta{}, nil)
	model := &scriptedModel{reply: anomalyReply}
	d := NewSemanticDetector(model, wh, "prices", 20)

	f, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, f.Detected)
	// The model is never consulted on an empty sample.
	assert.Empty(t, model.prompt)
}
