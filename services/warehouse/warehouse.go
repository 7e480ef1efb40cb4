// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package warehouse is the boundary to the analytical data store holding the
// monitored production table, its quarantine sibling, and the schema
// metadata the drift detector compares against.
//
// Two implementations ship: the BigQuery REST client for deployments and an
// in-memory store for tests and local runs. Both classify failures into the
// monitor's transient/permanent taxonomy so the executor's retry policy
// applies uniformly.
package warehouse

import (
	"context"
)

// Column is one column of a warehouse table schema.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableMeta is the schema snapshot the drift detector diffs.
type TableMeta struct {
	Columns        []Column `json:"columns"`
	PartitionField string   `json:"partition_field,omitempty"`
}

// Row is one sampled record, column name to value.
type Row map[string]any

// Warehouse is the read/write surface the monitor needs: schema metadata for
// drift detection, recent rows for semantic analysis, and the quarantine
// move for remediation.
type Warehouse interface {
	// TableMeta returns the current schema of the monitored table.
	TableMeta(ctx context.Context, table string) (TableMeta, error)

	// SampleRows returns up to limit of the most recently ingested rows.
	SampleRows(ctx context.Context, table string, limit int) ([]Row, error)

	// Quarantine moves the identified records from the production table to
	// the quarantine table, stamping quarantined_at and quarantine_reason,
	// and returns the number of rows moved.
	Quarantine(ctx context.Context, ids []string, reason string) (int, error)
}
