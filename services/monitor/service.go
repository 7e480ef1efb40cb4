// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/osprey/services/connector"
	"github.com/AleutianAI/osprey/services/detect"
	"github.com/AleutianAI/osprey/services/llm"
	"github.com/AleutianAI/osprey/services/monitor/engine"
	"github.com/AleutianAI/osprey/services/monitor/executor"
	"github.com/AleutianAI/osprey/services/monitor/history"
	"github.com/AleutianAI/osprey/services/monitor/observability"
	"github.com/AleutianAI/osprey/services/monitor/routes"
	"github.com/AleutianAI/osprey/services/notify"
	"github.com/AleutianAI/osprey/services/warehouse"
	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the monitor's lifecycle contract.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the scheduler and HTTP server and blocks until shutdown
	// or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds monitor service configuration.
//
// # Description
//
// Centralizes all configuration for the monitor. Values can be populated
// from environment variables (see LoadConfigFromEnv), config files, or
// programmatically for testing. Zero values use defaults where noted.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend selects the semantic detector's model provider.
	// Valid values: "openai", "ollama". Default: "ollama"
	LLMBackend string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Empty disables tracing export.
	OTelEndpoint string

	// EnableMetrics exposes Prometheus metrics on /metrics.
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// CycleInterval is the scheduled cycle period. Zero disables the
	// scheduler; cycles then run only on manual triggers.
	CycleInterval time.Duration

	// GatherTimeout bounds each detector's observation pass. Default: 60s.
	GatherTimeout time.Duration

	// RuleConfigPath optionally points at a YAML rule config. When set the
	// file is watched and hot-reloaded on change.
	RuleConfigPath string

	// HistoryDir is the Badger audit store directory. Empty keeps history
	// in memory only.
	HistoryDir string

	// HistoryCapacity bounds the in-memory history ring. Default: 1000.
	HistoryCapacity int

	// RollbackDir receives generated rollback scripts. Default: ./rollbacks
	RollbackDir string

	// SchemaBaselinePath is the schema baseline snapshot. When the file is
	// missing, the baseline is captured from the live table at startup and
	// written there.
	SchemaBaselinePath string

	// SampleSize is how many recent rows the semantic detector analyzes.
	// Default: 20.
	SampleSize int

	// Warehouse locates the monitored BigQuery dataset. Empty ProjectID
	// runs against the in-memory warehouse (local/demo mode).
	Warehouse warehouse.BigQueryConfig

	// Connector configures the ingestion connector management API. Empty
	// BaseURL uses an in-process stub (local/demo mode).
	Connector connector.Config

	// WebhookURL, when set, adds a Slack-compatible webhook notification
	// channel alongside the structured log.
	WebhookURL string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
type service struct {
	config        Config
	router        *gin.Engine
	monitor       *Monitor
	scheduler     *Scheduler
	watcher       *fsnotify.Watcher
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a monitor Service with the given configuration.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (when an endpoint is configured)
//  3. Initializes Prometheus metrics
//  4. Connects the warehouse and connector boundaries (or their local
//     in-process stands-ins when unconfigured)
//  5. Builds the detectors, engine, executor, and history store
//  6. Starts the rule-config watcher when a config path is set
//  7. Sets up HTTP routes
//
// # Assumptions
//
//   - Environment variables are set for the chosen LLM provider
//   - The warehouse and connector APIs are reachable if configured
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	var metrics *observability.MonitorMetrics
	if s.config.EnableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for monitor")
	}

	if err := s.initPipeline(metrics); err != nil {
		s.cleanup()
		return nil, err
	}

	if s.config.RuleConfigPath != "" {
		if err := s.initRuleWatcher(); err != nil {
			slog.Warn("rule config watcher failed, hot reload disabled", "error", err)
		}
	}

	if s.config.CycleInterval > 0 {
		s.scheduler = NewScheduler(s.monitor, s.config.CycleInterval)
	}
	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the scheduler and the HTTP server and blocks until the server
// stops. Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	if s.scheduler != nil {
		if err := s.scheduler.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start cycle scheduler: %w", err)
		}
	} else {
		slog.Info("cycle scheduler disabled, manual triggers only")
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting monitor server", "port", s.config.Port)
	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.GatherTimeout == 0 {
		cfg.GatherTimeout = 60 * time.Second
	}
	if cfg.HistoryCapacity == 0 {
		cfg.HistoryCapacity = 1000
	}
	if cfg.RollbackDir == "" {
		cfg.RollbackDir = "./rollbacks"
	}
	if cfg.SampleSize == 0 {
		cfg.SampleSize = 20
	}
	return cfg
}

// initPipeline wires the warehouse, connector, detectors, engine, executor,
// history store, and the Monitor itself.
func (s *service) initPipeline(metrics *observability.MonitorMetrics) error {
	ctx := context.Background()

	// Warehouse boundary.
	var wh warehouse.Warehouse
	if s.config.Warehouse.ProjectID != "" {
		bq, err := warehouse.NewBigQuery(ctx, s.config.Warehouse)
		if err != nil {
			return fmt.Errorf("failed to initialize warehouse: %w", err)
		}
		wh = bq
	} else {
		slog.Info("Warehouse not configured, using in-memory store (local mode)")
		wh = warehouse.NewMemory("record_id")
	}

	// Connector boundary.
	var source executor.SourceController
	if s.config.Connector.BaseURL != "" {
		client, err := connector.New(s.config.Connector)
		if err != nil {
			return fmt.Errorf("failed to initialize connector client: %w", err)
		}
		source = client
	} else {
		slog.Info("Connector API not configured, using in-process stub (local mode)")
		source = &inprocSource{}
	}

	// Decision engine, optionally from a YAML rule config.
	engCfg := engine.DefaultConfig()
	if s.config.RuleConfigPath != "" {
		loaded, err := engine.LoadConfig(s.config.RuleConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load rule config: %w", err)
		}
		engCfg = loaded
	}
	eng, err := engine.New(engCfg)
	if err != nil {
		return err
	}

	// Notification channels.
	channels := notify.Multi{notify.LogNotifier{}}
	if s.config.WebhookURL != "" {
		hook, err := notify.NewWebhookNotifier(s.config.WebhookURL)
		if err != nil {
			return err
		}
		channels = append(channels, hook)
	}

	// Executor and its rollback sink.
	rollbacks, err := executor.NewDirRollbackSink(s.config.RollbackDir)
	if err != nil {
		return err
	}
	exec, err := executor.New(executor.Config{
		ProductionTable: s.warehouseTableRef(s.config.Warehouse.ProductionTable),
		QuarantineTable: s.warehouseTableRef(s.config.Warehouse.QuarantineTable),
		IDColumn:        s.config.Warehouse.IDColumn,
	}, source, wh, rollbacks, channels)
	if err != nil {
		return err
	}

	// Audit history.
	var store history.Store
	if s.config.HistoryDir != "" {
		store, err = history.NewBadgerStore(s.config.HistoryDir)
		if err != nil {
			return fmt.Errorf("failed to open audit history: %w", err)
		}
	} else {
		store = history.NewMemoryStore(s.config.HistoryCapacity)
	}

	// Detectors.
	schemaDet := detect.NewSchemaDetector(wh, s.config.Warehouse.ProductionTable)
	if s.config.SchemaBaselinePath != "" {
		if err := schemaDet.LoadBaseline(s.config.SchemaBaselinePath); err != nil {
			slog.Warn("schema baseline missing, capturing from live table",
				"path", s.config.SchemaBaselinePath, "error", err)
			if cerr := schemaDet.CaptureBaseline(ctx, s.config.SchemaBaselinePath); cerr != nil {
				return fmt.Errorf("failed to establish schema baseline: %w", cerr)
			}
		}
	} else if err := schemaDet.CaptureBaseline(ctx, ""); err != nil {
		return fmt.Errorf("failed to establish schema baseline: %w", err)
	}

	model, err := s.initLLMClient()
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	semanticDet := detect.NewSemanticDetector(model, wh,
		s.config.Warehouse.ProductionTable, s.config.SampleSize)

	s.monitor, err = NewMonitor(
		[]detect.Detector{schemaDet, semanticDet},
		eng, exec, store, metrics, s.config.GatherTimeout,
	)
	return err
}

// warehouseTableRef renders a fully qualified table name for rollback SQL,
// falling back to the bare table name in local mode.
func (s *service) warehouseTableRef(table string) string {
	if s.config.Warehouse.ProjectID == "" {
		return table
	}
	return fmt.Sprintf("%s.%s.%s",
		s.config.Warehouse.ProjectID, s.config.Warehouse.Dataset, table)
}

// initLLMClient creates the model client for the semantic detector.
func (s *service) initLLMClient() (llm.LLMClient, error) {
	slog.Info("Initializing LLM backend", "provider", s.config.LLMBackend)
	return llm.New(s.config.LLMBackend)
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("osprey-monitor")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initRuleWatcher hot-reloads the engine config when the rule file changes.
// A broken edit is rejected by validation and the engine keeps the previous
// config.
func (s *service) initRuleWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.config.RuleConfigPath); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := engine.LoadConfig(s.config.RuleConfigPath)
				if err != nil {
					slog.Error("rule config reload rejected", "error", err)
					continue
				}
				if err := s.monitor.Engine().Reload(cfg); err != nil {
					slog.Error("rule config reload rejected", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("rule config watcher error", "error", err)
			}
		}
	}()

	slog.Info("rule config watcher started", "path", s.config.RuleConfigPath)
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("osprey-monitor"))

	routes.SetupRoutes(s.router, s.monitor, s.config.EnableMetrics)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			slog.Warn("scheduler stop error", "error", err)
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			slog.Warn("rule config watcher close error", "error", err)
		}
	}
	if s.monitor != nil {
		if err := s.monitor.History().Close(); err != nil {
			slog.Warn("audit history close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Local-Mode Connector Stub
// =============================================================================

// inprocSource is the in-process connector stand-in for local and demo runs:
// pause state is a flag, queries and writes behave like the real API.
type inprocSource struct {
	mu     sync.Mutex
	paused bool
}

var _ executor.SourceController = (*inprocSource)(nil)

func (s *inprocSource) IsPaused(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, nil
}

func (s *inprocSource) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *inprocSource) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}
