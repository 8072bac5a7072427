package upstream

import (
	"context"
	"io"
	"net/http"
)

type ctxKey int

const (
	ctxHeaders ctxKey = iota
)

// WithHeaderOverrides attaches headers that every request sent with ctx will
// carry. Request-level headers still win over these.
func WithHeaderOverrides(ctx context.Context, hdr http.Header) context.Context {
	if hdr == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxHeaders, hdr)
}

// HeaderOverrides returns the headers attached by WithHeaderOverrides.
func HeaderOverrides(ctx context.Context) http.Header {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(ctxHeaders); v != nil {
		if h, ok := v.(http.Header); ok {
			return h
		}
	}
	return nil
}

// readAll reads and closes the response body.
func readAll(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
