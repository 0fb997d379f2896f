// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit provides the audit orchestration service.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the record store, LLM clients, the engine
// packages (risk, knowledge, tasks, commonality, approval), the schedule
// runner, and observability infrastructure.
//
// # Usage
//
//	cfg := audit.Config{Port: 12230, LLMBackend: "ollama"}
//	svc, err := audit.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

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

	"github.com/AleutianAI/AleutianAudit/services/audit/approval"
	"github.com/AleutianAI/AleutianAudit/services/audit/commonality"
	"github.com/AleutianAI/AleutianAudit/services/audit/config"
	"github.com/AleutianAI/AleutianAudit/services/audit/knowledge"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/risk"
	"github.com/AleutianAI/AleutianAudit/services/audit/routes"
	"github.com/AleutianAI/AleutianAudit/services/audit/storage"
	"github.com/AleutianAI/AleutianAudit/services/audit/tasks"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the audit service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds audit service configuration options. All fields are optional
// with defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12230
	Port int

	// LLMBackend specifies the inference provider.
	// Valid values: "openai", "ollama". Default: "ollama"
	LLMBackend string

	// LLMClient, when set, is used instead of constructing a backend from
	// LLMBackend. Intended for tests.
	LLMClient llm.Client

	// DataPath is the record store directory. Default: "./data/audit"
	DataPath string

	// InMemory uses an in-memory record store. Intended for tests.
	InMemory bool

	// SearchStrategy selects knowledge retrieval ranking.
	// Valid values: "lexical", "semantic". Default: "lexical"
	SearchStrategy string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// EnableTracing enables OTLP trace export. Default: false (spans are
	// still created; they are simply not exported).
	EnableTracing bool

	// EnableMetrics enables the Prometheus metrics endpoint. Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode. Default: uses GIN_MODE env var.
	GinMode string

	// SchedulerEnabled runs the background schedule sweeper. Default: true
	SchedulerEnabled bool

	// SchedulerSweep is how often due schedules are checked.
	// Default: 1 minute
	SchedulerSweep time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use. All fields are read-only
// after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         *storage.Store
	llmClient     llm.Client
	engines       routes.Engines
	runner        *ScheduleRunner
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a new audit Service with the given configuration.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (export optional)
//  3. Initializes Prometheus metrics
//  4. Opens the record store
//  5. Creates the LLM client based on backend type
//  6. Wires the engine packages
//  7. Sets up HTTP routes and the schedule runner
//
// # Outputs
//
//   - Service: Ready-to-run audit service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.EnableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.initEngines()
	s.initRouter()

	if s.config.SchedulerEnabled {
		runner, err := NewScheduleRunner(s.store, s.engines.Risk, s.engines.Schedules, s.config.SchedulerSweep)
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to create schedule runner: %w", err)
		}
		s.runner = runner
		s.runner.Start()
	}

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting audit server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing. Callers must not
// modify the router.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12230
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "./data/audit"
	}
	if cfg.SearchStrategy == "" {
		cfg.SearchStrategy = string(knowledge.StrategyLexical)
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	cfg.EnableMetrics = true
	cfg.SchedulerEnabled = !cfg.InMemory
	if cfg.SchedulerSweep == 0 {
		cfg.SchedulerSweep = time.Minute
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
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
		resource.WithAttributes(semconv.ServiceNameKey.String("audit-service")))
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

// initStorage opens the Badger-backed record store.
func (s *service) initStorage() error {
	var err error
	if s.config.InMemory {
		s.store, err = storage.OpenInMemory()
	} else {
		s.store, err = storage.Open(storage.DefaultConfig(s.config.DataPath))
	}
	if err != nil {
		return err
	}
	slog.Info("Record store opened", "path", s.config.DataPath, "in_memory", s.config.InMemory)
	return nil
}

// initLLMClient creates the inference client based on the backend type. An
// injected Config.LLMClient takes precedence over the backend switch.
func (s *service) initLLMClient() error {
	if s.config.LLMClient != nil {
		s.llmClient = s.config.LLMClient
		slog.Info("Using injected inference client")
		return nil
	}
	var err error
	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI inference backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama inference backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}
	return err
}

// initEngines wires the engine packages in dependency order.
func (s *service) initEngines() {
	cache := storage.NewCache(s.store)
	cfgRepo := config.NewRepository(s.store)
	dataStore := risk.NewDataStore(s.store)
	kbStore := knowledge.NewStore(s.store, cache, s.llmClient,
		knowledge.Strategy(s.config.SearchStrategy))

	s.engines = routes.Engines{
		Data:      dataStore,
		Risk:      risk.NewEngine(s.store, dataStore, s.llmClient, cfgRepo),
		Knowledge: kbStore,
		Copilot:   knowledge.NewCopilot(s.store, kbStore, s.llmClient),
		Checker:   knowledge.NewChecker(s.store, s.llmClient),
		Tasks:     tasks.NewLifecycle(s.store, s.llmClient),
		Agent:     commonality.NewAgent(s.store, s.llmClient),
		Approval:  approval.NewEngine(s.store),
		Config:    cfgRepo,
		Schedules: config.NewScheduleRegistry(s.store),
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("audit-service"))

	routes.SetupRoutes(s.router, s.engines)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.runner != nil {
		s.runner.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Record store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
