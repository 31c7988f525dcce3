package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// TracerName is the instrumentation name used for consumer and producer spans.
const TracerName = "StreamMin-Cli/consumer"

// TracingOptions describes the process being traced.
type TracingOptions struct {
	ServiceName string
	// InstanceID distinguishes group members sharing one service name, usually the consumer id.
	InstanceID string
	// Stream is recorded on the resource so every span names the stream it works on.
	Stream string
	// JaegerEndpoint is the collector endpoint; empty keeps spans in-process only.
	JaegerEndpoint string
	// SampleRatio is the fraction of root traces kept; values >= 1 keep all of them.
	SampleRatio float64
}

func (o TracingOptions) sampler() sdktrace.Sampler {
	if o.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.SampleRatio))
}

func (o TracingOptions) resource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(o.ServiceName), semconv.MessagingSystemKey.String("redis")}
	if o.InstanceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceIDKey.String(o.InstanceID))
	}
	if o.Stream != "" {
		attrs = append(attrs, semconv.MessagingDestinationNameKey.String(o.Stream))
	}
	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

// InitTracerProvider builds a tracer provider for opts, Jaeger-backed when an endpoint is set,
// and installs it with the W3C trace-context propagator as the process globals. The returned
// shutdown function flushes pending spans and must be called on termination.
func InitTracerProvider(opts TracingOptions) (func(context.Context) error, error) {
	res, err := opts.resource()
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(opts.sampler()),
		sdktrace.WithResource(res),
	}
	if opts.JaegerEndpoint != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
		if err != nil {
			return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
		klog.InfoS("Tracing enabled with Jaeger exporter", "endpoint", opts.JaegerEndpoint, "sampleRatio", opts.SampleRatio)
	} else {
		klog.InfoS("Tracing enabled without an exporter. TraceIDs available in logs only", "sampleRatio", opts.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

// Tracer returns the consumer tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
