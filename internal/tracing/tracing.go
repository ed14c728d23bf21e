// Package tracing wires OpenTelemetry spans around grove's slow paths
// (dispatch, reconciliation). Disabled by default; when enabled, spans go
// to a local JSONL file, stdout, or an OTLP collector.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "grove"

// Config configures tracing. Zero value means disabled.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter selects the backend: "file", "stdout", or "otlp".
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// FilePath is the JSONL output for the file exporter. Defaults to
	// gen/traces.jsonl under the grove root.
	FilePath string `mapstructure:"file_path" yaml:"file_path"`

	// OTLPEndpoint is the collector endpoint for the otlp exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// Provider wraps the SDK tracer provider behind a no-op when disabled.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewProvider builds the provider for cfg. Disabled tracing costs nothing:
// span calls go through a no-op tracer.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "file", "":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file_path required for file exporter")
		}
		exporter, err = NewFileExporter(cfg.FilePath)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return &Provider{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// Tracer returns the tracer; safe to use when tracing is disabled.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans. Call before process exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

// StartExec opens a span for one command dispatch.
func (p *Provider) StartExec(ctx context.Context, target, command string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "grove.exec", trace.WithAttributes(
		attribute.String("grove.target", target),
		attribute.String("grove.command", command),
	))
}

// StartReconcile opens a span for one workspace reconciliation.
func (p *Provider) StartReconcile(ctx context.Context, workspace string, repair bool) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "grove.reconcile", trace.WithAttributes(
		attribute.String("grove.workspace", workspace),
		attribute.Bool("grove.repair", repair),
	))
}
