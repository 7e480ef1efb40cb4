// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDecision() datatypes.Decision {
	return datatypes.Decision{
		ID:         "d-1",
		Action:     datatypes.ActionPauseAndAlert,
		Priority:   datatypes.PriorityHigh,
		Score:      85,
		Confidence: 0.9,
		RuleID:     "score-pause",
		Reasoning:  []string{"score-pause: combined severity score 85 at or above pause threshold"},
	}
}

func TestWebhookNotifierPostsSlackPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL)
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), testDecision()))

	assert.Contains(t, got["text"], "PAUSE_AND_ALERT")
	assert.Contains(t, got["text"], "score 85")
	assert.Contains(t, got["text"], "decision: d-1")
}

func TestWebhookNotifierClassifiesFailures(t *testing.T) {
	tests := []struct {
		status        int
		wantTransient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		n, err := NewWebhookNotifier(srv.URL)
		require.NoError(t, err)
		err = n.Notify(context.Background(), testDecision())
		require.Error(t, err)
		assert.Equal(t, tt.wantTransient, datatypes.IsTransient(err), "status %d", tt.status)
		srv.Close()
	}
}

func TestLogNotifierNeverFails(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), testDecision()))
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(ctx context.Context, d datatypes.Decision) error { return f.err }

type countingNotifier struct{ calls int }

func (c *countingNotifier) Notify(ctx context.Context, d datatypes.Decision) error {
	c.calls++
	return nil
}

func TestMultiAttemptsAllChannels(t *testing.T) {
	counter := &countingNotifier{}
	m := Multi{
		failingNotifier{err: assert.AnError},
		counter,
	}

	err := m.Notify(context.Background(), testDecision())
	require.Error(t, err)
	assert.Equal(t, 1, counter.calls)
}

func TestMultiAllHealthy(t *testing.T) {
	a, b := &countingNotifier{}, &countingNotifier{}
	require.NoError(t, Multi{a, b}.Notify(context.Background(), testDecision()))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}
