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
	"os"
	"sync"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/warehouse"
)

// =============================================================================
// Schema Drift Detector
// =============================================================================

// SchemaDetector diffs the monitored table's live schema against a captured
// baseline. It is fully deterministic: when it detects drift it reports
// confidence 1.0, and severity follows fixed rules.
//
// Severity rules, worst wins:
//
//   - type change: CRITICAL (breaks downstream queries)
//   - removed column: HIGH (queries referencing it fail)
//   - partition change: HIGH (performance and cost impact)
//   - nullability change: MEDIUM (NULL handling issues)
//   - new column: LOW (generally safe)
type SchemaDetector struct {
	wh    warehouse.Warehouse
	table string

	mu       sync.RWMutex
	baseline warehouse.TableMeta
	captured bool
}

var _ Detector = (*SchemaDetector)(nil)

// NewSchemaDetector builds the detector. A baseline must be provided via
// SetBaseline, LoadBaseline, or CaptureBaseline before the first cycle.
func NewSchemaDetector(wh warehouse.Warehouse, table string) *SchemaDetector {
	return &SchemaDetector{wh: wh, table: table}
}

func (d *SchemaDetector) Source() datatypes.Source { return datatypes.SourceSchema }

// SetBaseline installs an explicit baseline schema.
func (d *SchemaDetector) SetBaseline(meta warehouse.TableMeta) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = meta
	d.captured = true
}

// LoadBaseline reads a baseline snapshot previously written by
// SaveBaseline.
func (d *SchemaDetector) LoadBaseline(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schema baseline %s: %w", path, err)
	}
	var meta warehouse.TableMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("failed to parse schema baseline %s: %w", path, err)
	}
	d.SetBaseline(meta)
	slog.Info("schema baseline loaded", "path", path, "columns", len(meta.Columns))
	return nil
}

// CaptureBaseline snapshots the live schema as the new baseline and
// optionally persists it to path.
func (d *SchemaDetector) CaptureBaseline(ctx context.Context, path string) error {
	meta, err := d.wh.TableMeta(ctx, d.table)
	if err != nil {
		return fmt.Errorf("failed to capture schema baseline: %w", err)
	}
	d.SetBaseline(meta)

	if path != "" {
		raw, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema baseline: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("failed to write schema baseline %s: %w", path, err)
		}
	}
	slog.Info("schema baseline captured", "table", d.table, "columns", len(meta.Columns))
	return nil
}

// Detect diffs live schema against the baseline and reports one Finding.
func (d *SchemaDetector) Detect(ctx context.Context) (datatypes.Finding, error) {
	d.mu.RLock()
	baseline := d.baseline
	captured := d.captured
	d.mu.RUnlock()

	if !captured {
		return datatypes.Finding{}, fmt.Errorf("schema detector has no baseline for table %s", d.table)
	}

	current, err := d.wh.TableMeta(ctx, d.table)
	if err != nil {
		return datatypes.Finding{}, fmt.Errorf("failed to fetch live schema: %w", err)
	}

	changes := diffSchemas(baseline, current)
	if len(changes) == 0 {
		return datatypes.NoDetection(datatypes.SourceSchema), nil
	}

	worst := datatypes.SeverityLow
	category := "schema_new_column"
	evidence := make([]string, 0, len(changes))
	for _, ch := range changes {
		evidence = append(evidence, ch.describe())
		if severityRank(ch.severity) > severityRank(worst) {
			worst = ch.severity
			category = ch.category
		}
	}

	return datatypes.Finding{
		Source:        datatypes.SourceSchema,
		Detected:      true,
		Confidence:    1.0,
		SeverityHint:  worst,
		Category:      category,
		AffectedCount: len(changes),
		Evidence:      evidence,
		ObservedAt:    time.Now().UTC(),
	}, nil
}

// =============================================================================
// Diff
// =============================================================================

type schemaChange struct {
	category string
	severity datatypes.SeverityHint
	column   string
	detail   string
}

func (c schemaChange) describe() string {
	return fmt.Sprintf("%s: column %s %s", c.category, c.column, c.detail)
}

func diffSchemas(baseline, current warehouse.TableMeta) []schemaChange {
	base := columnIndex(baseline)
	cur := columnIndex(current)

	var changes []schemaChange

	for _, col := range baseline.Columns {
		curCol, ok := cur[col.Name]
		if !ok {
			changes = append(changes, schemaChange{
				category: "schema_removed_column",
				severity: datatypes.SeverityHigh,
				column:   col.Name,
				detail:   "removed",
			})
			continue
		}
		if col.Type != curCol.Type {
			changes = append(changes, schemaChange{
				category: "schema_type_change",
				severity: datatypes.SeverityCritical,
				column:   col.Name,
				detail:   fmt.Sprintf("type changed %s -> %s", col.Type, curCol.Type),
			})
		}
		if col.Nullable != curCol.Nullable {
			changes = append(changes, schemaChange{
				category: "schema_nullability_change",
				severity: datatypes.SeverityMedium,
				column:   col.Name,
				detail:   fmt.Sprintf("nullable changed %t -> %t", col.Nullable, curCol.Nullable),
			})
		}
	}

	for _, col := range current.Columns {
		if _, ok := base[col.Name]; !ok {
			changes = append(changes, schemaChange{
				category: "schema_new_column",
				severity: datatypes.SeverityLow,
				column:   col.Name,
				detail:   fmt.Sprintf("added (%s)", col.Type),
			})
		}
	}

	if baseline.PartitionField != current.PartitionField {
		changes = append(changes, schemaChange{
			category: "schema_partition_change",
			severity: datatypes.SeverityHigh,
			column:   current.PartitionField,
			detail: fmt.Sprintf("partition field changed %q -> %q",
				baseline.PartitionField, current.PartitionField),
		})
	}

	return changes
}

func columnIndex(meta warehouse.TableMeta) map[string]warehouse.Column {
	idx := make(map[string]warehouse.Column, len(meta.Columns))
	for _, c := range meta.Columns {
		idx[c.Name] = c
	}
	return idx
}

func severityRank(h datatypes.SeverityHint) int {
	switch h {
	case datatypes.SeverityCritical:
		return 4
	case datatypes.SeverityHigh:
		return 3
	case datatypes.SeverityMedium:
		return 2
	case datatypes.SeverityLow:
		return 1
	default:
		return 0
	}
}
