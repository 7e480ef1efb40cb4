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
	"log"
	"log/slog"
	"time"

	"github.com/AleutianAI/osprey/services/connector"
	"github.com/AleutianAI/osprey/services/monitor"
	"github.com/AleutianAI/osprey/services/warehouse"
	"github.com/spf13/cobra"
)

// serveCmd starts the monitor server.
//
// # Description
//
// Reads configuration from environment variables and runs the scheduler
// and HTTP API until the process is stopped. With no warehouse or
// connector configured the server runs in local mode against in-memory
// stand-ins, which is useful for development and demos.
//
// # Environment Variables
//
//   - OSPREY_PORT: HTTP server port (default: 12310)
//   - OSPREY_CYCLE_INTERVAL: cycle period, Go duration (default: 15m)
//   - OSPREY_RULE_CONFIG: YAML rule config path, hot-reloaded (optional)
//   - OSPREY_HISTORY_DIR: Badger audit store directory (optional)
//   - OSPREY_ROLLBACK_DIR: rollback script directory (default: ./rollbacks)
//   - OSPREY_SCHEMA_BASELINE: schema baseline snapshot path (optional)
//   - LLM_BACKEND_TYPE: openai or ollama (default: ollama)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - BQ_PROJECT_ID, BQ_DATASET, BQ_PRODUCTION_TABLE, BQ_QUARANTINE_TABLE,
//     BQ_CREDENTIALS_FILE: warehouse location
//   - CONNECTOR_API_URL, CONNECTOR_ID, CONNECTOR_API_KEY,
//     CONNECTOR_API_SECRET: ingestion connector management API
//   - NOTIFY_WEBHOOK_URL: Slack-compatible webhook (optional)
//   - OSPREY_LOG_DIR: JSON file log directory (optional)
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitor server",
	Run:   runServeCommand,
}

func runServeCommand(cmd *cobra.Command, args []string) {
	interval, err := time.ParseDuration(getEnvString("OSPREY_CYCLE_INTERVAL", "15m"))
	if err != nil {
		log.Fatalf("Invalid OSPREY_CYCLE_INTERVAL: %v", err)
	}

	cfg := monitor.Config{
		Port:               getEnvInt("OSPREY_PORT", 12310),
		LLMBackend:         getEnvString("LLM_BACKEND_TYPE", "ollama"),
		OTelEndpoint:       getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableMetrics:      getEnvBool("OSPREY_ENABLE_METRICS", true),
		CycleInterval:      interval,
		RuleConfigPath:     getEnvString("OSPREY_RULE_CONFIG", ""),
		HistoryDir:         getEnvString("OSPREY_HISTORY_DIR", ""),
		RollbackDir:        getEnvString("OSPREY_ROLLBACK_DIR", ""),
		SchemaBaselinePath: getEnvString("OSPREY_SCHEMA_BASELINE", ""),
		Warehouse: warehouse.BigQueryConfig{
			ProjectID:       getEnvString("BQ_PROJECT_ID", ""),
			Dataset:         getEnvString("BQ_DATASET", ""),
			ProductionTable: getEnvString("BQ_PRODUCTION_TABLE", "events"),
			QuarantineTable: getEnvString("BQ_QUARANTINE_TABLE", "events_quarantine"),
			CredentialsFile: getEnvString("BQ_CREDENTIALS_FILE", ""),
		},
		Connector: connector.Config{
			BaseURL:     getEnvString("CONNECTOR_API_URL", ""),
			ConnectorID: getEnvString("CONNECTOR_ID", ""),
			APIKey:      getEnvString("CONNECTOR_API_KEY", ""),
			APISecret:   getEnvString("CONNECTOR_API_SECRET", ""),
		},
		WebhookURL: getEnvString("NOTIFY_WEBHOOK_URL", ""),
	}

	slog.Info("Starting osprey monitor",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"cycle_interval", cfg.CycleInterval.String(),
		"warehouse_project", cfg.Warehouse.ProjectID,
	)

	svc, err := monitor.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create monitor: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Monitor error: %v", err)
	}
}
