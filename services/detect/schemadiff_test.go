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
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baselineMeta() warehouse.TableMeta {
	return warehouse.TableMeta{
		Columns: []warehouse.Column{
			{Name: "record_id", Type: "STRING", Nullable: false},
			{Name: "symbol", Type: "STRING", Nullable: false},
			{Name: "price", Type: "FLOAT64", Nullable: true},
			{Name: "timestamp", Type: "TIMESTAMP", Nullable: false},
		},
		PartitionField: "timestamp",
	}
}

func detectorWith(t *testing.T, current warehouse.TableMeta) *SchemaDetector {
	t.Helper()
	wh := warehouse.NewMemory("record_id")
	wh.SetTable("prices", current, nil)
	d := NewSchemaDetector(wh, "prices")
	d.SetBaseline(baselineMeta())
	return d
}

func TestSchemaDetectNoDrift(t *testing.T) {
	d := detectorWith(t, baselineMeta())

	f, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, f.Detected)
	assert.Equal(t, datatypes.SourceSchema, f.Source)
	assert.Equal(t, datatypes.SeverityNone, f.SeverityHint)
}

func TestSchemaDetectSeverities(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(m *warehouse.TableMeta)
		wantHint     datatypes.SeverityHint
		wantCategory string
	}{
		{
			name: "type change is critical",
			mutate: func(m *warehouse.TableMeta) {
				m.Columns[2].Type = "STRING"
			},
			wantHint:     datatypes.SeverityCritical,
			wantCategory: "schema_type_change",
		},
		{
			name: "removed column is high",
			mutate: func(m *warehouse.TableMeta) {
				m.Columns = m.Columns[:3]
			},
			wantHint:     datatypes.SeverityHigh,
			wantCategory: "schema_removed_column",
		},
		{
			name: "partition change is high",
			mutate: func(m *warehouse.TableMeta) {
				m.PartitionField = "symbol"
			},
			wantHint:     datatypes.SeverityHigh,
			wantCategory: "schema_partition_change",
		},
		{
			name: "nullability change is medium",
			mutate: func(m *warehouse.TableMeta) {
				m.Columns[1].Nullable = true
			},
			wantHint:     datatypes.SeverityMedium,
			wantCategory: "schema_nullability_change",
		},
		{
			name: "new column is low",
			mutate: func(m *warehouse.TableMeta) {
				m.Columns = append(m.Columns, warehouse.Column{
					Name: "note", Type: "STRING", Nullable: true,
				})
			},
			wantHint:     datatypes.SeverityLow,
			wantCategory: "schema_new_column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current := baselineMeta()
			tt.mutate(&current)
			d := detectorWith(t, current)

			f, err := d.Detect(context.Background())
			require.NoError(t, err)
			assert.True(t, f.Detected)
			assert.Equal(t, 1.0, f.Confidence)
			assert.Equal(t, tt.wantHint, f.SeverityHint)
			assert.Equal(t, tt.wantCategory, f.Category)
			assert.NotEmpty(t, f.Evidence)
		})
	}
}

func TestSchemaDetectWorstSeverityWins(t *testing.T) {
	current := baselineMeta()
	current.Columns[2].Type = "STRING" // critical
	current.Columns = append(current.Columns, warehouse.Column{
		Name: "note", Type: "STRING", Nullable: true, // low
	})
	d := detectorWith(t, current)

	f, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, datatypes.SeverityCritical, f.SeverityHint)
	assert.Equal(t, "schema_type_change", f.Category)
	assert.Equal(t, 2, f.AffectedCount)
	assert.Len(t, f.Evidence, 2)
}

func TestSchemaDetectWithoutBaselineFails(t *testing.T) {
	wh := warehouse.NewMemory("record_id")
	wh.SetTable("prices", baselineMeta(), nil)
	d := NewSchemaDetector(wh, "prices")

	_, err := d.Detect(context.Background())
	require.Error(t, err)
}

func TestSchemaBaselineRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	raw, err := json.Marshal(baselineMeta())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	wh := warehouse.NewMemory("record_id")
	wh.SetTable("prices", baselineMeta(), nil)
	d := NewSchemaDetector(wh, "prices")
	require.NoError(t, d.LoadBaseline(path))

	f, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, f.Detected)
}

func TestSchemaCaptureBaselinePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	wh := warehouse.NewMemory("record_id")
	wh.SetTable("prices", baselineMeta(), nil)
	d := NewSchemaDetector(wh, "prices")

	require.NoError(t, d.CaptureBaseline(context.Background(), path))

	// A second detector can load the capture and agree on no drift.
	d2 := NewSchemaDetector(wh, "prices")
	require.NoError(t, d2.LoadBaseline(path))
	f, err := d2.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, f.Detected)
}
