// Package tracing installs the process-wide OpenTelemetry tracer provider.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Provider owns the installed tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
}

// Setup installs a sampling tracer provider as the global provider when
// tracing is enabled. Spans get real trace IDs, which the API echoes in
// X-Trace-ID. With tracing disabled the global no-op provider stays in place.
func Setup(cfg domain.TracingConfig, version string) *Provider {
	if !cfg.Enabled {
		return &Provider{}
	}

	name := cfg.ServiceName
	if name == "" {
		name = "fathom"
	}
	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(tp)

	return &Provider{provider: tp}
}

// Enabled reports whether an SDK provider is installed.
func (p *Provider) Enabled() bool {
	return p.provider != nil
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
