// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/monitor/history"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fake Pipeline
// =============================================================================

type fakePipeline struct {
	record    history.Record
	runErr    error
	resume    datatypes.Effect
	resumeErr error
	paused    bool
	pausedErr error
	phase     datatypes.Phase
	store     history.Store
}

func (f *fakePipeline) RunCycle(ctx context.Context) (history.Record, error) {
	return f.record, f.runErr
}

func (f *fakePipeline) Resume(ctx context.Context) (datatypes.Effect, error) {
	return f.resume, f.resumeErr
}

func (f *fakePipeline) ConnectorPaused(ctx context.Context) (bool, error) {
	return f.paused, f.pausedErr
}

func (f *fakePipeline) Phase() datatypes.Phase { return f.phase }

func (f *fakePipeline) History() history.Store { return f.store }

func newFakePipeline(t *testing.T, records ...history.Record) *fakePipeline {
	t.Helper()
	store := history.NewMemoryStore(100)
	for _, rec := range records {
		require.NoError(t, store.Append(context.Background(), rec))
	}
	return &fakePipeline{phase: datatypes.PhaseIdle, store: store}
}

func record(id string, action datatypes.Action) history.Record {
	return history.Record{Decision: datatypes.Decision{ID: id, Action: action}}
}

func perform(h gin.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	router := gin.New()
	router.Handle(method, "/x", h)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/x"+target, nil)
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	w := perform(HealthCheck, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestTriggerCycleReturnsRecord(t *testing.T) {
	p := newFakePipeline(t)
	p.record = record("dec-1", datatypes.ActionContinue)

	w := perform(TriggerCycle(p), http.MethodPost, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var rec history.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "dec-1", rec.Decision.ID)
}

func TestTriggerCycleConflictWhenBusy(t *testing.T) {
	p := newFakePipeline(t)
	p.runErr = datatypes.ErrCycleInProgress

	w := perform(TriggerCycle(p), http.MethodPost, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerCycleInvariantViolationIs500(t *testing.T) {
	p := newFakePipeline(t)
	p.runErr = &datatypes.InvariantViolation{Detail: "empty finding set"}

	w := perform(TriggerCycle(p), http.MethodPost, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListDecisionsDefaultLimit(t *testing.T) {
	recs := make([]history.Record, 25)
	for i := range recs {
		recs[i] = record(fmt.Sprintf("dec-%d", i), datatypes.ActionContinue)
	}
	p := newFakePipeline(t, recs...)

	w := perform(ListDecisions(p), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Decisions []history.Record `json:"decisions"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 20, body.Count)
	// Newest first.
	assert.Equal(t, "dec-24", body.Decisions[0].Decision.ID)
}

func TestListDecisionsRejectsBadLimit(t *testing.T) {
	p := newFakePipeline(t)

	for _, raw := range []string{"zero", "0", "-3"} {
		w := perform(ListDecisions(p), http.MethodGet, "?limit="+raw)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", raw)
	}
}

func TestGetStatus(t *testing.T) {
	p := newFakePipeline(t, record("dec-9", datatypes.ActionPauseAndAlert))
	p.phase = datatypes.PhaseActing
	p.paused = true

	w := perform(GetStatus(p), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Phase           string             `json:"phase"`
		Cycles          int                `json:"cycles"`
		ConnectorPaused bool               `json:"connector_paused"`
		LastDecision    datatypes.Decision `json:"last_decision"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(datatypes.PhaseActing), body.Phase)
	assert.Equal(t, 1, body.Cycles)
	assert.True(t, body.ConnectorPaused)
	assert.Equal(t, "dec-9", body.LastDecision.ID)
	assert.Contains(t, w.Body.String(), "last_cycle_time")
}

func TestGetStatusOmitsConnectorStateOnError(t *testing.T) {
	p := newFakePipeline(t)
	p.pausedErr = fmt.Errorf("connector api unreachable")

	w := perform(GetStatus(p), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "connector_paused")
}

func TestGetStatusEmptyHistoryOmitsLastDecision(t *testing.T) {
	p := newFakePipeline(t)

	w := perform(GetStatus(p), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "last_decision")
}

func TestResumeConnector(t *testing.T) {
	p := newFakePipeline(t)
	p.resume = datatypes.Effect{Kind: datatypes.EffectResumeSource, Status: datatypes.EffectSucceeded}

	w := perform(ResumeConnector(p), http.MethodPost, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(datatypes.EffectSucceeded))
}

func TestResumeConnectorFailureIs502(t *testing.T) {
	p := newFakePipeline(t)
	p.resume = datatypes.Effect{Kind: datatypes.EffectResumeSource, Status: datatypes.EffectFailed}
	p.resumeErr = fmt.Errorf("resume failed: connector api 500")

	w := perform(ResumeConnector(p), http.MethodPost, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
