// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the task service.
//
// This package contains the Service type that wires every component
// together: the task store, the model gateway, the tool registry, the chat
// orchestrator, the planner, HTTP routing and observability.
//
// # Usage
//
//	cfg, err := orchestrator.LoadConfig("taskbot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run(ctx))
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianTasks/services/llm"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/planner"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/services"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/store"
	"github.com/AleutianAI/AleutianTasks/services/orchestrator/tools"
	"github.com/AleutianAI/AleutianTasks/services/policy_engine"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
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

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the task service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the planner and the HTTP server and blocks until ctx is
	// cancelled or the server fails. Resources are released on return.
	Run(ctx context.Context) error

	// Chat runs one chat turn without going through HTTP.
	Chat(ctx context.Context, req *datatypes.ChatToolRequest) (*datatypes.ChatToolResponse, error)

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases the store and the tracer. Safe to call multiple times.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// ModelConfig selects and authenticates the model gateway.
//
// # Fields
//
//   - Backend: "anthropic" (default) or "openai".
//   - ID: Target model id. Required.
//   - Region: Recorded on spans and logs.
//   - BaseURL: Optional endpoint override.
//   - APIKey: Provider key. Never read from the YAML file.
//   - Timeout: Per-call HTTP timeout. Default: 60s.
type ModelConfig struct {
	Backend string        `yaml:"backend" validate:"omitempty,oneof=anthropic openai"`
	ID      string        `yaml:"id" validate:"required"`
	Region  string        `yaml:"region"`
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// Config holds service configuration.
//
// # Description
//
// Config is the only configuration surface; no component reads the
// environment. LoadConfig builds one from file and environment, tests
// build one directly. Zero values are filled by applyConfigDefaults, and
// boolean switches start from DefaultConfig.
//
// # Examples
//
//	cfg := orchestrator.DefaultConfig()
//	cfg.Model.ID = "claude-3-haiku-20240307"
//	cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
//	svc, err := orchestrator.New(cfg)
type Config struct {
	// ServiceName is reported by /health and on traces. Default: "taskbot"
	ServiceName string `yaml:"service_name"`

	// Port is the HTTP server port. Default: 8080
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`

	// Model configures the model gateway.
	Model ModelConfig `yaml:"model"`

	// DataDir is the BadgerDB directory. Ignored when InMemoryStore is set.
	DataDir string `yaml:"data_dir" validate:"required_unless=InMemoryStore true"`

	// InMemoryStore keeps tasks in memory only.
	InMemoryStore bool `yaml:"in_memory_store"`

	// TracingEnabled exports spans over OTLP/gRPC to OTelEndpoint.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	OTelEndpoint string `yaml:"otel_endpoint" validate:"required_if=TracingEnabled true"`

	// MetricsEnabled records metrics and serves /metrics.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// PlannerEnabled attaches plans to inserted tasks while Run is active.
	PlannerEnabled bool `yaml:"planner_enabled"`

	// ScreenPrompts rejects chat prompts that contain credentials before
	// they reach the model provider.
	ScreenPrompts bool `yaml:"screen_prompts"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns the configuration used when nothing is set.
// Model.ID and Model.APIKey have no defaults.
func DefaultConfig() Config {
	return applyConfigDefaults(Config{
		MetricsEnabled: true,
		PlannerEnabled: true,
	})
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "taskbot"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	cfg.Model.Backend = strings.ToLower(strings.TrimSpace(cfg.Model.Backend))
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = llm.BackendAnthropic
	}
	cfg.Model.ID = strings.TrimSpace(cfg.Model.ID)
	if cfg.Model.Region == "" {
		cfg.Model.Region = "us-east-1"
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 60 * time.Second
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/tasks"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

var configValidate = validator.New()

// Validate checks the configuration.
//
// # Outputs
//
//   - error: nil, or ErrInvalidConfig naming every offending field.
func (c Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch {
	case field == "Model.ID" && fe.Tag() == "required":
		return "model id is required (set MODEL_ID)"
	case fe.Tag() == "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case fe.Param() != "":
		return fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// =============================================================================
// Options
// =============================================================================

// Option customizes New.
type Option func(*service)

// WithLLMClient uses the given client instead of building one from
// Config.Model.
func WithLLMClient(client llm.LLMClient) Option {
	return func(s *service) { s.llmClient = client }
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns, apart from the close guard.
type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.LLMClient
	store         *store.BadgerTaskStore
	registry      *tools.Registry
	chat          *services.ChatToolService
	planner       *planner.Planner
	screen        *policy_engine.PolicyEngine
	metricsReg    *prometheus.Registry
	metrics       *observability.ChatMetrics
	tracerCleanup func(context.Context)
	closeOnce     sync.Once
	closeErr      error
}

// New creates the service.
//
// # Description
//
// New validates the configuration and initializes, in order: tracing,
// metrics, the task store, the model gateway, the tool registry, the chat
// service, the planner, the prompt screen and the router. On failure everything already
// initialized is released.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: ErrInvalidConfig for configuration problems, otherwise the
//     failing component's error.
func New(cfg Config, opts ...Option) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	if s.config.TracingEnabled {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.MetricsEnabled {
		s.metricsReg = observability.NewRegistry()
		s.metrics = observability.NewChatMetrics(s.metricsReg)
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, err
	}

	if s.config.ScreenPrompts {
		engine, err := policy_engine.NewPolicyEngine()
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to load prompt screening rules: %w", err)
		}
		s.screen = engine
	}

	s.registry = tools.NewRegistry(s.store)
	s.chat = services.NewChatToolService(s.llmClient, s.registry, services.WithMetrics(s.metrics))
	if s.config.PlannerEnabled {
		s.planner = planner.New(s.store, s.store, s.llmClient, planner.WithMetrics(s.metrics))
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the planner and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	if s.planner != nil {
		if err := s.planner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start planner: %w", err)
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting task server", "port", s.config.Port, "model", s.llmClient.Model())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutting down task server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Chat runs one chat turn.
func (s *service) Chat(ctx context.Context, req *datatypes.ChatToolRequest) (*datatypes.ChatToolResponse, error) {
	return s.chat.Process(ctx, req)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases all resources held by the service.
func (s *service) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.cleanup()
	})
	return s.closeErr
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter that sends spans to the configured
// collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
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
		resource.WithAttributes(semconv.ServiceNameKey.String(s.config.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}
	return cleanup, nil
}

// initStore opens the BadgerDB task store.
func (s *service) initStore() error {
	badgerCfg := store.DefaultBadgerConfig(s.config.DataDir)
	if s.config.InMemoryStore {
		badgerCfg = store.InMemoryBadgerConfig()
	}

	var err error
	s.store, err = store.OpenBadgerTaskStore(badgerCfg)
	if err != nil {
		return err
	}
	slog.Info("Task store opened", "in_memory", s.config.InMemoryStore, "path", badgerCfg.Path)
	return nil
}

// initLLMClient creates the model gateway unless one was injected.
func (s *service) initLLMClient() error {
	if s.llmClient != nil {
		return nil
	}

	client, err := llm.NewClient(llm.Config{
		Backend: s.config.Model.Backend,
		Model:   s.config.Model.ID,
		Region:  s.config.Model.Region,
		BaseURL: s.config.Model.BaseURL,
		APIKey:  s.config.Model.APIKey,
		Timeout: s.config.Model.Timeout,
	})
	if err != nil {
		if errors.Is(err, llm.ErrModelNotConfigured) || errors.Is(err, llm.ErrAPIKeyMissing) ||
			errors.Is(err, llm.ErrUnknownBackend) {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.llmClient = client
	slog.Info("Model gateway ready",
		"backend", client.Name(),
		"model", client.Model(),
		"region", s.config.Model.Region,
	)
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		middleware.CORS(),
		otelgin.Middleware(s.config.ServiceName),
		middleware.RequestLogger(slog.Default()),
	)

	deps := routes.Dependencies{
		ServiceName: s.config.ServiceName,
		Chat:        s.chat,
		Tasks:       s.store,
		Writer:      s.registry,
	}
	if s.metricsReg != nil {
		deps.Gatherer = s.metricsReg
	}
	if s.screen != nil {
		deps.Screen = s.screen
	}
	routes.SetupRoutes(s.router, deps)
}

// cleanup stops the planner, closes the store and shuts down the tracer.
func (s *service) cleanup() error {
	if s.planner != nil {
		s.planner.Stop()
	}

	var err error
	if s.store != nil {
		if closeErr := s.store.Close(); closeErr != nil {
			slog.Warn("Task store close error", "error", closeErr)
			err = closeErr
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
	return err
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
