// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the monitor's HTTP surface.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/monitor/history"
	"github.com/gin-gonic/gin"
)

// Pipeline is the slice of the monitor the HTTP surface needs. Defined here
// so handlers stay testable with a fake and free of the wiring package.
type Pipeline interface {
	RunCycle(ctx context.Context) (history.Record, error)
	Resume(ctx context.Context) (datatypes.Effect, error)
	ConnectorPaused(ctx context.Context) (bool, error)
	Phase() datatypes.Phase
	History() history.Store
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// TriggerCycle runs one monitoring cycle synchronously and returns its
// record. A cycle already in flight yields 409; an engine invariant
// violation yields 500 because it means a rule table bug, not bad input.
func TriggerCycle(p Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := p.RunCycle(c.Request.Context())
		if err != nil {
			if errors.Is(err, datatypes.ErrCycleInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			slog.Error("cycle aborted on invariant violation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// ListDecisions returns up to ?limit=N recent cycle records, newest first.
// Limit defaults to 20 and is capped at 500.
func ListDecisions(p Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, 500)
		}

		recs, err := p.History().Recent(c.Request.Context(), limit)
		if err != nil {
			slog.Error("failed to read decision history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"decisions": recs, "count": len(recs)})
	}
}

// GetStatus reports the pipeline phase, history depth, and the most recent
// decision if any.
func GetStatus(p Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		count, err := p.History().Count(ctx)
		if err != nil {
			slog.Error("failed to count decision history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
			return
		}

		status := gin.H{
			"phase":  p.Phase(),
			"cycles": count,
		}
		if last, ok, err := p.History().Last(ctx); err == nil && ok {
			status["last_decision"] = last.Decision
			status["last_cycle_time"] = last.Decision.Timestamp
		}
		if paused, err := p.ConnectorPaused(ctx); err == nil {
			status["connector_paused"] = paused
		} else {
			slog.Warn("connector state unavailable for status", "error", err)
		}
		c.JSON(http.StatusOK, status)
	}
}

// ResumeConnector re-enables the paused ingestion connector. The operation
// is idempotent; resuming an already-running connector reports a skipped
// effect rather than an error.
func ResumeConnector(p Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		eff, err := p.Resume(c.Request.Context())
		if err != nil {
			slog.Error("connector resume failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "effect": eff})
			return
		}
		c.JSON(http.StatusOK, gin.H{"effect": eff})
	}
}
