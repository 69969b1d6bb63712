// Package telemetry provides the OpenTelemetry-backed implementation of
// core.Telemetry: every LLM call, capability invocation, and planner
// request opens a span through this provider, and the LLM router and the
// executor emit counters and histograms through it.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxweave/conductor/core"
)

// Provider implements core.Telemetry using an OTel TracerProvider and
// MeterProvider. When endpoint is empty it exports traces to stdout
// (development mode); otherwise it dials an OTLP/gRPC collector.
type Provider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	instruments   map[string]metric.Float64Histogram
	counters      map[string]metric.Float64Counter
	instrumentsMu sync.Mutex

	shutdownOnce sync.Once
	mu           sync.RWMutex
	shutdown     bool
}

// NewProvider creates a telemetry provider for serviceName. endpoint is an
// OTLP/gRPC collector address (e.g. "localhost:4317"); pass "" to export
// traces to stdout instead, useful for local runs of cmd/conductor.
func NewProvider(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	ctx := context.Background()

	var spanProcessor sdktrace.SpanProcessorOption
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating stdout trace exporter: %w", err)
		}
		spanProcessor = sdktrace.WithBatcher(exporter)
	} else {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating OTLP trace exporter for %s: %w", endpoint, err)
		}
		spanProcessor = sdktrace.WithBatcher(exporter)
	}

	tp := sdktrace.NewTracerProvider(spanProcessor, sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracer:         tp.Tracer("conductor"),
		meter:          mp.Meter("conductor"),
		traceProvider:  tp,
		metricProvider: mp,
		instruments:    make(map[string]metric.Float64Histogram),
		counters:       make(map[string]metric.Float64Counter),
	}, nil
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shutdown || p.tracer == nil {
		return ctx, &core.NoOpSpan{}
	}
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry, routing by name suffix to either
// a counter ("*_total", "*_count") or a histogram (everything else,
// including durations).
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	p.mu.RLock()
	shutdown := p.shutdown
	p.mu.RUnlock()
	if shutdown {
		return
	}

	var attrs []attribute.KeyValue
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx := context.Background()
	if hasSuffix(name, "_total") || hasSuffix(name, "_count") {
		p.counter(name).Add(ctx, value, metric.WithAttributes(attrs...))
		return
	}
	p.histogram(name).Record(ctx, value, metric.WithAttributes(attrs...))
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func (p *Provider) counter(name string) metric.Float64Counter {
	p.instrumentsMu.Lock()
	defer p.instrumentsMu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c, _ := p.meter.Float64Counter(name)
	p.counters[name] = c
	return c
}

func (p *Provider) histogram(name string) metric.Float64Histogram {
	p.instrumentsMu.Lock()
	defer p.instrumentsMu.Unlock()
	if h, ok := p.instruments[name]; ok {
		return h
	}
	h, _ := p.meter.Float64Histogram(name)
	p.instruments[name] = h
	return h
}

// Shutdown flushes and tears down the tracer/meter providers. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		var errs []error
		if p.metricProvider != nil {
			if err := p.metricProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("metric provider shutdown: %w", err))
			}
		}
		if p.traceProvider != nil {
			if err := p.traceProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
			}
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
	})
	return shutdownErr
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
