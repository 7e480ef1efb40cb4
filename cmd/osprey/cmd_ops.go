// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	serverURL    string // Monitor server base URL
	historyLimit int    // Max records for the history command
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// cycleCmd triggers one monitoring cycle synchronously and prints the
// resulting decision and effects. A 409 means a cycle is already running.
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Trigger one monitoring cycle now",
	Run: func(cmd *cobra.Command, args []string) {
		callServer(http.MethodPost, "/v1/cycles", nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline phase, cycle count, and last decision",
	Run: func(cmd *cobra.Command, args []string) {
		callServer(http.MethodGet, "/v1/status", nil)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent cycle records, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		callServer(http.MethodGet, fmt.Sprintf("/v1/decisions?limit=%d", historyLimit), nil)
	},
}

// resumeCmd re-enables a paused connector. Safe to run when the connector
// is already running; the server reports a skipped effect.
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-enable the paused ingestion connector",
	Run: func(cmd *cobra.Command, args []string) {
		callServer(http.MethodPost, "/v1/connector/resume", nil)
	},
}

func init() {
	for _, c := range []*cobra.Command{cycleCmd, statusCmd, historyCmd, resumeCmd} {
		c.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:12310",
			"Monitor server base URL")
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"Maximum number of records to show")
}

// =============================================================================
// SERVER CLIENT
// =============================================================================

// callServer issues one request against the running monitor and pretty-prints
// the JSON response. Non-2xx responses exit non-zero after printing the body,
// so operator scripts can branch on the exit code.
func callServer(method, path string, body io.Reader) {
	client := &http.Client{Timeout: 5 * time.Minute}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bad request: %v\n", err)
		os.Exit(1)
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot reach monitor at %s: %v\n", serverURL, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		os.Exit(1)
	}

	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(pretty)
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}
