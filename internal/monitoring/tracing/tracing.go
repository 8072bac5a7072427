package tracing

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"dashsync-go/internal/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "dashsync-go"

// Options selects the OTLP exporter. Empty Endpoint falls back to
// OTEL_EXPORTER_OTLP_ENDPOINT; when both are empty tracing stays a no-op.
type Options struct {
	Endpoint string
	Insecure bool
}

var (
	initOnce       sync.Once
	tracerProvider *sdktrace.TracerProvider
)

// Init installs the global tracer provider once and returns its shutdown func.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	var initErr error
	initOnce.Do(func() {
		endpoint := strings.TrimSpace(opts.Endpoint)
		insecure := opts.Insecure
		if endpoint == "" {
			endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
			flag := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"))
			insecure = flag == "" || strings.EqualFold(flag, "true") || flag == "1"
		}
		if endpoint == "" {
			return
		}

		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			initErr = err
			return
		}

		res, err := resource.New(ctx,
			resource.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("service.version", version.Version),
				attribute.String("service.instance.id", hostname()),
			),
			resource.WithProcess(),
			resource.WithFromEnv(),
		)
		if err != nil {
			initErr = err
			return
		}

		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		otel.SetTextMapPropagator(propagation.TraceContext{})
	})

	if initErr != nil {
		return noop, initErr
	}
	if tracerProvider == nil {
		return noop, nil
	}
	return tracerProvider.Shutdown, nil
}

// StartSpan starts a span on the "dashsync-go/<component>" tracer.
func StartSpan(ctx context.Context, component, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	name := serviceName
	if strings.TrimSpace(component) != "" {
		name += "/" + component
	}
	return otel.Tracer(name).Start(ctx, spanName, opts...)
}

// Finish records err on span, sets its status and ends it.
func Finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func hostname() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
