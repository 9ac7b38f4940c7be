// =============================================================================
// RetrievalFlow OpenTelemetry SDK Initialization
// =============================================================================
// Wraps OTel SDK setup for traces. When tracing is disabled, no exporter is
// created and the global tracer provider remains noop — retrieval spans
// created via otel.Tracer become no-ops with zero overhead.
// =============================================================================

package telemetry

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Config 追踪配置。
type Config struct {
	// 是否启用追踪
	Enabled bool `yaml:"enabled" json:"enabled"`

	// 服务名，出现在追踪后端的 service.name 属性
	ServiceName string `yaml:"service_name" json:"service_name"`

	// OTLP gRPC 采集端点
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`

	// 采样率 (0-1]
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultConfig 返回默认追踪配置（关闭）。
func DefaultConfig() Config {
	return Config{
		ServiceName:  "retrievalflow",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
	}
}

// Provider holds the OTel SDK TracerProvider. When tracing is disabled,
// the field is nil and Shutdown is a no-op.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init initializes the OTel SDK. When cfg.Enabled is false, it returns
// a noop Provider without connecting to any external service.
func Init(cfg Config, logger *zap.Logger) (*Provider, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled, using noop provider")
		return &Provider{}, nil
	}

	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and closes the exporter.
// Safe to call on a noop Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

// buildVersion extracts the module version from Go build info.
// Falls back to "dev" if unavailable.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
