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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// BigQuery Client
// =============================================================================

// BigQueryConfig locates the monitored dataset.
type BigQueryConfig struct {
	ProjectID       string
	Dataset         string
	ProductionTable string
	QuarantineTable string

	// IDColumn is the primary record identifier used for quarantine scoping.
	IDColumn string

	// OrderColumn orders SampleRows newest-first, typically the ingestion
	// timestamp.
	OrderColumn string

	// CredentialsFile is an optional service account key path. Empty means
	// application default credentials.
	CredentialsFile string
}

func (c *BigQueryConfig) applyDefaults() {
	if c.IDColumn == "" {
		c.IDColumn = "record_id"
	}
	if c.OrderColumn == "" {
		c.OrderColumn = "timestamp"
	}
}

// BigQuery implements Warehouse over the BigQuery REST API.
type BigQuery struct {
	cfg BigQueryConfig
	svc *bq.Service
}

var _ Warehouse = (*BigQuery)(nil)

// NewBigQuery builds the client. Credentials resolution follows the usual
// Google chain unless a key file is configured.
func NewBigQuery(ctx context.Context, cfg BigQueryConfig) (*BigQuery, error) {
	if cfg.ProjectID == "" || cfg.Dataset == "" {
		return nil, fmt.Errorf("bigquery: project id and dataset are required")
	}
	cfg.applyDefaults()

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	svc, err := bq.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery service: %w", err)
	}
	slog.Info("bigquery warehouse client ready",
		"project", cfg.ProjectID, "dataset", cfg.Dataset)
	return &BigQuery{cfg: cfg, svc: svc}, nil
}

func (b *BigQuery) TableMeta(ctx context.Context, table string) (TableMeta, error) {
	tbl, err := b.svc.Tables.Get(b.cfg.ProjectID, b.cfg.Dataset, table).Context(ctx).Do()
	if err != nil {
		return TableMeta{}, classify("tables.get", err)
	}

	meta := TableMeta{}
	if tbl.Schema != nil {
		for _, f := range tbl.Schema.Fields {
			meta.Columns = append(meta.Columns, Column{
				Name:     f.Name,
				Type:     f.Type,
				Nullable: f.Mode != "REQUIRED",
			})
		}
	}
	if tbl.TimePartitioning != nil {
		meta.PartitionField = tbl.TimePartitioning.Field
	}
	return meta, nil
}

func (b *BigQuery) SampleRows(ctx context.Context, table string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := fmt.Sprintf("SELECT * FROM `%s.%s.%s` ORDER BY %s DESC LIMIT %d",
		b.cfg.ProjectID, b.cfg.Dataset, table, b.cfg.OrderColumn, limit)

	resp, err := b.query(ctx, sql, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows(resp), nil
}

func (b *BigQuery) Quarantine(ctx context.Context, ids []string, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	prod := b.tableRef(b.cfg.ProductionTable)
	quar := b.tableRef(b.cfg.QuarantineTable)

	// The ids come back from model output, so they travel as a query
	// parameter rather than being spliced into the SQL text.
	idsParam := stringArrayParam("ids", ids)
	reasonParam := &bq.QueryParameter{
		Name:           "reason",
		ParameterType:  &bq.QueryParameterType{Type: "STRING"},
		ParameterValue: &bq.QueryParameterValue{Value: reason},
	}

	copySQL := fmt.Sprintf(
		"INSERT INTO `%s`\nSELECT *, CURRENT_TIMESTAMP() AS quarantined_at, @reason AS quarantine_reason\nFROM `%s`\nWHERE %s IN UNNEST(@ids)",
		quar, prod, b.cfg.IDColumn)
	copyResp, err := b.query(ctx, copySQL, []*bq.QueryParameter{idsParam, reasonParam})
	if err != nil {
		return 0, err
	}
	moved := int(copyResp.NumDmlAffectedRows)

	deleteSQL := fmt.Sprintf("DELETE FROM `%s` WHERE %s IN UNNEST(@ids)",
		prod, b.cfg.IDColumn)
	if _, err := b.query(ctx, deleteSQL, []*bq.QueryParameter{idsParam}); err != nil {
		// Copy landed but delete failed: records are duplicated, not lost.
		// Surface the error so the Effect records the inconsistent state.
		return moved, err
	}

	slog.Info("records quarantined", "count", moved, "table", b.cfg.ProductionTable)
	return moved, nil
}

func (b *BigQuery) tableRef(table string) string {
	return fmt.Sprintf("%s.%s.%s", b.cfg.ProjectID, b.cfg.Dataset, table)
}

func (b *BigQuery) query(ctx context.Context, sql string, params []*bq.QueryParameter) (*bq.QueryResponse, error) {
	useLegacy := false
	req := &bq.QueryRequest{
		Query:           sql,
		UseLegacySql:    &useLegacy,
		QueryParameters: params,
		TimeoutMs:       30000,
	}
	if params != nil {
		req.ParameterMode = "NAMED"
	}
	resp, err := b.svc.Jobs.Query(b.cfg.ProjectID, req).Context(ctx).Do()
	if err != nil {
		return nil, classify("jobs.query", err)
	}
	if !resp.JobComplete {
		return nil, &datatypes.TransientError{
			Op:  "jobs.query",
			Err: fmt.Errorf("query did not complete within timeout"),
		}
	}
	return resp, nil
}

// decodeRows flattens the REST response's positional cells into named rows.
func decodeRows(resp *bq.QueryResponse) []Row {
	if resp.Schema == nil {
		return nil
	}
	names := make([]string, len(resp.Schema.Fields))
	for i, f := range resp.Schema.Fields {
		names[i] = f.Name
	}

	rows := make([]Row, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		row := make(Row, len(names))
		for i, cell := range r.F {
			if i < len(names) {
				row[names[i]] = cell.V
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// stringArrayParam builds a named ARRAY<STRING> query parameter.
func stringArrayParam(name string, values []string) *bq.QueryParameter {
	arr := make([]*bq.QueryParameterValue, len(values))
	for i, v := range values {
		arr[i] = &bq.QueryParameterValue{Value: v}
	}
	return &bq.QueryParameter{
		Name: name,
		ParameterType: &bq.QueryParameterType{
			Type:      "ARRAY",
			ArrayType: &bq.QueryParameterType{Type: "STRING"},
		},
		ParameterValue: &bq.QueryParameterValue{ArrayValues: arr},
	}
}

// classify maps Google API failures onto the monitor's error taxonomy:
// rate limits, server errors and network faults retry once; everything else
// is permanent.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || gerr.Code >= 500 {
			return &datatypes.TransientError{Op: op, Err: err}
		}
		return &datatypes.PermanentError{Op: op, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &datatypes.TransientError{Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &datatypes.TransientError{Op: op, Err: err}
	}
	return &datatypes.PermanentError{Op: op, Err: err}
}
