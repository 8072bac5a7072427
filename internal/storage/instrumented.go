package storage

import (
	"context"
	"time"

	"dashsync-go/internal/monitoring"
	"dashsync-go/internal/monitoring/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// WithInstrumentation wraps a KV with tracing spans and prometheus metrics.
func WithInstrumentation(inner KV, label string) KV {
	if inner == nil {
		return nil
	}
	if label == "" {
		label = "unknown"
	}
	return &instrumentedKV{inner: inner, label: label}
}

type instrumentedKV struct {
	inner KV
	label string
}

func (i *instrumentedKV) Get(ctx context.Context, key string) (string, error) {
	var out string
	err := i.instrument(ctx, "get", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = i.inner.Get(ctx, key)
		return innerErr
	})
	return out, err
}

func (i *instrumentedKV) Set(ctx context.Context, key, value string) error {
	return i.instrument(ctx, "set", func(ctx context.Context) error {
		return i.inner.Set(ctx, key, value)
	})
}

func (i *instrumentedKV) Delete(ctx context.Context, key string) error {
	return i.instrument(ctx, "delete", func(ctx context.Context) error {
		return i.inner.Delete(ctx, key)
	})
}

func (i *instrumentedKV) Close() error { return i.inner.Close() }

func (i *instrumentedKV) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(ctx, "storage", i.label+"/"+operation)
	span.SetAttributes(
		attribute.String("storage.backend", i.label),
		attribute.String("storage.operation", operation),
	)
	start := time.Now()
	err := fn(ctx)
	// A miss is a normal outcome for the token key.
	spanErr := err
	if IsNotFound(err) {
		spanErr = nil
	}
	tracing.Finish(span, spanErr)

	result := "ok"
	switch {
	case IsNotFound(err):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	monitoring.StorageOperationsTotal.WithLabelValues(i.label, operation, result).Inc()
	monitoring.StorageOperationDuration.WithLabelValues(i.label, operation).Observe(time.Since(start).Seconds())
	return err
}
