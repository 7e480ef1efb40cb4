// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command osprey runs and operates the data-quality monitor.
//
// # Usage
//
//	osprey serve                 # Start the monitor server
//	osprey cycle                 # Trigger one monitoring cycle now
//	osprey status                # Show pipeline phase and last decision
//	osprey history --limit 50    # Show recent cycle records
//	osprey resume                # Re-enable a paused connector
//
// Operator commands talk to a running server; --server overrides the
// default http://localhost:12310.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/osprey/pkg/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "osprey",
	Short: "Autonomous data-quality monitor for warehouse ingestion pipelines",
	Long: `Osprey watches a warehouse table for schema drift and semantic
anomalies, decides on a remediation action through a deterministic rule
table, and carries the action out against the ingestion connector and
the warehouse.`,
	SilenceUsage: true,
}

func main() {
	// The server logs JSON; interactive commands stay human-readable.
	// OSPREY_LOG_DIR adds a JSON file log either way.
	isServe := len(os.Args) > 1 && os.Args[1] == "serve"
	logger, err := logging.New(logging.Config{
		Level:   slog.LevelInfo,
		Service: "osprey",
		LogDir:  os.Getenv("OSPREY_LOG_DIR"),
		JSON:    isServe,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := rootCmd.Execute(); err != nil {
		logger.Close()
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resumeCmd)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
