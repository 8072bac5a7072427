package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Init(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "test", "op")
	require.NotNil(t, ctx)
	Finish(span, errors.New("boom"))
}
