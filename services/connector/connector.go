// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package connector controls the upstream ingestion connector through its
// management REST API: query sync state, pause, resume, and trigger an
// on-demand sync.
//
// The API meters clients per hour, so every call passes through a local rate
// limiter sized below the provider's quota. Responses are classified into
// the monitor's transient/permanent error taxonomy for the executor's retry
// policy.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"golang.org/x/time/rate"
)

// =============================================================================
// Client
// =============================================================================

// Config identifies the managed connector and its API credentials.
type Config struct {
	// BaseURL of the management API, e.g. https://api.fivetran.com/v1.
	BaseURL string

	// ConnectorID of the ingestion connector under management.
	ConnectorID string

	// APIKey and APISecret authenticate via HTTP basic auth.
	APIKey    string
	APISecret string

	// RequestsPerHour caps outbound calls. Zero uses 100, safely under the
	// provider's 120/h quota.
	RequestsPerHour int

	// Timeout per HTTP request.
	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestsPerHour <= 0 {
		c.RequestsPerHour = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Client is the rate-limited management API client.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a Client. BaseURL and ConnectorID are required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.ConnectorID == "" {
		return nil, fmt.Errorf("connector: base url and connector id are required")
	}
	cfg.applyDefaults()
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerHour)/3600.0), 5),
	}, nil
}

// State is the connector's reported sync state.
type State struct {
	Paused    bool   `json:"paused"`
	SyncState string `json:"sync_state"`
}

type apiEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Status fetches the connector's current state.
func (c *Client) Status(ctx context.Context) (State, error) {
	var st State
	body, err := c.call(ctx, http.MethodGet, c.connectorPath(""), nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, &datatypes.PermanentError{
			Op:  "connector.status",
			Err: fmt.Errorf("malformed status payload: %w", err),
		}
	}
	return st, nil
}

// IsPaused reports whether ingestion is currently paused.
func (c *Client) IsPaused(ctx context.Context) (bool, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// Pause stops ingestion.
func (c *Client) Pause(ctx context.Context) error {
	return c.setPaused(ctx, true)
}

// Resume restarts ingestion.
func (c *Client) Resume(ctx context.Context) error {
	return c.setPaused(ctx, false)
}

func (c *Client) setPaused(ctx context.Context, paused bool) error {
	payload := map[string]bool{"paused": paused}
	_, err := c.call(ctx, http.MethodPatch, c.connectorPath(""), payload)
	if err != nil {
		return err
	}
	slog.Info("connector state changed", "connector_id", c.cfg.ConnectorID, "paused", paused)
	return nil
}

// TriggerSync requests an immediate sync run, typically after a resume to
// backfill the paused window.
func (c *Client) TriggerSync(ctx context.Context) error {
	payload := map[string]bool{"force": true}
	_, err := c.call(ctx, http.MethodPost, c.connectorPath("/sync"), payload)
	if err != nil {
		return err
	}
	slog.Info("connector sync triggered", "connector_id", c.cfg.ConnectorID)
	return nil
}

func (c *Client) connectorPath(suffix string) string {
	return fmt.Sprintf("%s/connectors/%s%s", c.cfg.BaseURL, c.cfg.ConnectorID, suffix)
}

// call issues one rate-limited request and returns the envelope's data
// payload.
func (c *Client) call(ctx context.Context, method, url string, payload any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &datatypes.TransientError{Op: "connector.ratelimit", Err: err}
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &datatypes.PermanentError{Op: "connector.encode", Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &datatypes.PermanentError{Op: "connector.request", Err: err}
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APISecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network-level failures (timeouts, resets) are worth one retry.
		return nil, &datatypes.TransientError{Op: "connector.call", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &datatypes.TransientError{Op: "connector.read", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &datatypes.TransientError{
			Op:  "connector.call",
			Err: fmt.Errorf("api returned %d: %s", resp.StatusCode, firstLine(raw)),
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &datatypes.PermanentError{
			Op:  "connector.call",
			Err: fmt.Errorf("api returned %d: %s", resp.StatusCode, firstLine(raw)),
		}
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &datatypes.PermanentError{
			Op:  "connector.decode",
			Err: fmt.Errorf("malformed response: %w", err),
		}
	}
	return env.Data, nil
}

func firstLine(raw []byte) string {
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}
