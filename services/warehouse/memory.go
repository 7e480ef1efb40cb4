// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package warehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
)

// Memory is an in-process Warehouse for tests and local demo runs. Rows are
// keyed by the id column; quarantined rows move to a separate map with the
// same bookkeeping columns BigQuery would add.
type Memory struct {
	mu          sync.RWMutex
	meta        map[string]TableMeta
	rows        map[string][]Row
	quarantined []Row
	idColumn    string

	// FailWith, when set, makes every call return this error. Tests use it
	// to exercise the transient/permanent paths.
	FailWith error
}

var _ Warehouse = (*Memory)(nil)

// NewMemory builds an empty in-memory warehouse keyed on idColumn.
func NewMemory(idColumn string) *Memory {
	if idColumn == "" {
		idColumn = "record_id"
	}
	return &Memory{
		meta:     make(map[string]TableMeta),
		rows:     make(map[string][]Row),
		idColumn: idColumn,
	}
}

// SetTable installs a table's schema and rows.
func (m *Memory) SetTable(table string, meta TableMeta, rows []Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[table] = meta
	m.rows[table] = rows
}

// Quarantined returns a copy of the quarantine table contents.
func (m *Memory) Quarantined() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, len(m.quarantined))
	copy(out, m.quarantined)
	return out
}

func (m *Memory) TableMeta(ctx context.Context, table string) (TableMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return TableMeta{}, m.FailWith
	}
	meta, ok := m.meta[table]
	if !ok {
		return TableMeta{}, &datatypes.PermanentError{
			Op:  "tables.get",
			Err: fmt.Errorf("table %q not found", table),
		}
	}
	return meta, nil
}

func (m *Memory) SampleRows(ctx context.Context, table string, limit int) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	rows := m.rows[table]
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	out := make([]Row, limit)
	copy(out, rows[:limit])
	return out, nil
}

func (m *Memory) Quarantine(ctx context.Context, ids []string, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	moved := 0
	now := time.Now().UTC()
	for table, rows := range m.rows {
		var kept []Row
		for _, row := range rows {
			id, _ := row[m.idColumn].(string)
			if _, hit := wanted[id]; !hit {
				kept = append(kept, row)
				continue
			}
			q := make(Row, len(row)+2)
			for k, v := range row {
				q[k] = v
			}
			q["quarantined_at"] = now
			q["quarantine_reason"] = reason
			m.quarantined = append(m.quarantined, q)
			moved++
		}
		m.rows[table] = kept
	}
	return moved, nil
}
