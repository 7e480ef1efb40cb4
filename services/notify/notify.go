// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify delivers decisions to operators. The log notifier is always
// on; a webhook notifier (Slack-compatible payload) is added when a webhook
// URL is configured. Notification failure never blocks the cycle; it is
// recorded as a failed Effect like any other side effect.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
)

// Notifier delivers one Decision to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, d datatypes.Decision) error
}

// =============================================================================
// Log Notifier
// =============================================================================

// LogNotifier writes decisions to the structured log. It never fails.
type LogNotifier struct{}

var _ Notifier = (*LogNotifier)(nil)

func (LogNotifier) Notify(ctx context.Context, d datatypes.Decision) error {
	slog.Warn("decision requires attention",
		"decision_id", d.ID,
		"action", d.Action,
		"priority", d.Priority,
		"score", d.Score,
		"confidence", d.Confidence,
		"rule", d.RuleID,
		"reasoning", strings.Join(d.Reasoning, "; "),
	)
	return nil
}

// =============================================================================
// Webhook Notifier
// =============================================================================

// WebhookNotifier posts a Slack-compatible message to a configured webhook.
type WebhookNotifier struct {
	url  string
	http *http.Client
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier builds the notifier for url.
func NewWebhookNotifier(url string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	return &WebhookNotifier{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (n *WebhookNotifier) Notify(ctx context.Context, d datatypes.Decision) error {
	payload := map[string]string{"text": formatMessage(d)}
	raw, err := json.Marshal(payload)
	if err != nil {
		return &datatypes.PermanentError{Op: "notify.encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(raw))
	if err != nil {
		return &datatypes.PermanentError{Op: "notify.request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return &datatypes.TransientError{Op: "notify.post", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &datatypes.TransientError{
			Op:  "notify.post",
			Err: fmt.Errorf("webhook returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return &datatypes.PermanentError{
			Op:  "notify.post",
			Err: fmt.Errorf("webhook returned %d", resp.StatusCode),
		}
	}
	return nil
}

func formatMessage(d datatypes.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (score %d, confidence %.0f%%)\n",
		d.Priority, d.Action, d.Score, d.Confidence*100)
	for _, line := range d.Reasoning {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	fmt.Fprintf(&b, "decision: %s", d.ID)
	return b.String()
}

// =============================================================================
// Fan-Out
// =============================================================================

// Multi fans one notification out to every channel. All channels are
// attempted; errors are joined so a dead webhook never hides the log line.
type Multi []Notifier

var _ Notifier = (Multi)(nil)

func (m Multi) Notify(ctx context.Context, d datatypes.Decision) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("notify: %d of %d channels failed: %v", len(errs), len(m), errs)
}
