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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/osprey/services/llm"
	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/warehouse"
)

// =============================================================================
// Semantic Anomaly Detector
// =============================================================================

// SemanticDetector samples the newest rows of the monitored table and asks
// the model backend to judge them for content-level anomalies that schema
// checks cannot see: test data in production, invalid symbols, impossible
// timestamps, out-of-range sentiment, missing required values.
//
// The model's answer is requested as strict JSON; fenced output is
// tolerated. A malformed answer fails the detection (the orchestrator then
// substitutes a source-unavailable Finding) rather than being guessed at.
type SemanticDetector struct {
	model      llm.LLMClient
	wh         warehouse.Warehouse
	table      string
	sampleSize int
}

var _ Detector = (*SemanticDetector)(nil)

// NewSemanticDetector builds the detector. sampleSize <= 0 defaults to 20.
func NewSemanticDetector(model llm.LLMClient, wh warehouse.Warehouse, table string, sampleSize int) *SemanticDetector {
	if sampleSize <= 0 {
		sampleSize = 20
	}
	return &SemanticDetector{model: model, wh: wh, table: table, sampleSize: sampleSize}
}

func (d *SemanticDetector) Source() datatypes.Source { return datatypes.SourceSemantic }

// analysis is the JSON contract the prompt demands from the model.
type analysis struct {
	HasAnomalies bool      `json:"has_anomalies"`
	Confidence   float64   `json:"confidence"`
	Anomalies    []anomaly `json:"anomalies"`
	Summary      string    `json:"summary"`
}

type anomaly struct {
	Type             string   `json:"type"`
	Severity         string   `json:"severity"`
	Field            string   `json:"field"`
	Evidence         []string `json:"evidence"`
	AffectedRowCount int      `json:"affected_row_count"`
	AffectedIDs      []string `json:"affected_ids"`
}

func (d *SemanticDetector) Detect(ctx context.Context) (datatypes.Finding, error) {
	rows, err := d.wh.SampleRows(ctx, d.table, d.sampleSize)
	if err != nil {
		return datatypes.Finding{}, fmt.Errorf("failed to sample rows for semantic analysis: %w", err)
	}
	if len(rows) == 0 {
		slog.Debug("semantic detector found no rows to analyze", "table", d.table)
		return datatypes.NoDetection(datatypes.SourceSemantic), nil
	}

	prompt, err := buildAnalysisPrompt(rows)
	if err != nil {
		return datatypes.Finding{}, err
	}

	raw, err := d.model.Generate(ctx, prompt, llm.Temperature0(2048))
	if err != nil {
		return datatypes.Finding{}, fmt.Errorf("semantic analysis call failed: %w", err)
	}

	result, err := parseAnalysis(raw)
	if err != nil {
		return datatypes.Finding{}, err
	}

	return result.toFinding(), nil
}

func buildAnalysisPrompt(rows []warehouse.Row) (string, error) {
	sample, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode row sample: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a data quality analyst. Analyze this financial news data for anomalies.\n\n")
	b.WriteString("DATA SAMPLE:\n")
	b.Write(sample)
	b.WriteString("\n\nCHECK FOR:\n")
	b.WriteString("1. Test data: \"test_\", \"dummy\", \"fake\", placeholder values\n")
	b.WriteString("2. Invalid stock symbols: Non-existent tickers\n")
	b.WriteString("3. Temporal anomalies: Future dates, dates before 2000\n")
	b.WriteString("4. Sentiment issues: Values outside [-1, 1], all identical\n")
	b.WriteString("5. Missing critical fields: null in required columns\n\n")
	b.WriteString("OUTPUT ONLY VALID JSON:\n")
	b.WriteString(`{
  "has_anomalies": true/false,
  "confidence": 0.0-1.0,
  "anomalies": [
    {
      "type": "test_data|invalid_symbol|temporal|sentiment|missing_data",
      "severity": "CRITICAL|HIGH|MEDIUM|LOW",
      "field": "column_name",
      "evidence": ["specific example 1", "example 2"],
      "affected_row_count": 5,
      "affected_ids": ["id1", "id2"]
    }
  ],
  "summary": "Brief description of issues found"
}`)
	b.WriteString("\n\nBe conservative. Only flag if confidence > 70%.")
	return b.String(), nil
}

// parseAnalysis decodes the model's answer, stripping a ```json fence if the
// model wrapped its output despite instructions.
func parseAnalysis(raw string) (analysis, error) {
	text := raw
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	text = strings.TrimSpace(text)

	var result analysis
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return analysis{}, fmt.Errorf("model returned unparseable analysis: %w", err)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return analysis{}, fmt.Errorf("model reported confidence %v outside [0,1]", result.Confidence)
	}
	return result, nil
}

// toFinding flattens the analysis into the single Finding contract. The
// dominant anomaly (highest reported severity) supplies the category and
// severity hint; evidence and affected ids aggregate across all anomalies.
func (a analysis) toFinding() datatypes.Finding {
	if !a.HasAnomalies || len(a.Anomalies) == 0 {
		return datatypes.NoDetection(datatypes.SourceSemantic)
	}

	dominant := a.Anomalies[0]
	for _, an := range a.Anomalies[1:] {
		if severityRank(datatypes.SeverityHint(an.Severity)) > severityRank(datatypes.SeverityHint(dominant.Severity)) {
			dominant = an
		}
	}

	hint := datatypes.SeverityHint(dominant.Severity)
	if !hint.Valid() || hint == datatypes.SeverityNone {
		hint = datatypes.SeverityMedium
	}

	var evidence []string
	var affectedIDs []string
	affectedCount := 0
	if a.Summary != "" {
		evidence = append(evidence, a.Summary)
	}
	for _, an := range a.Anomalies {
		for _, e := range an.Evidence {
			evidence = append(evidence, fmt.Sprintf("%s (%s): %s", an.Type, an.Field, e))
		}
		affectedIDs = append(affectedIDs, an.AffectedIDs...)
		affectedCount += an.AffectedRowCount
	}

	return datatypes.Finding{
		Source:        datatypes.SourceSemantic,
		Detected:      true,
		Confidence:    a.Confidence,
		SeverityHint:  hint,
		Category:      dominant.Type,
		AffectedCount: affectedCount,
		AffectedIDs:   affectedIDs,
		Evidence:      evidence,
		ObservedAt:    time.Now().UTC(),
	}
}
