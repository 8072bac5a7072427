// Package errors defines the failure taxonomy surfaced by the backend client.
//
// Callers match with the standard library:
//
//	errors.Is(err, apierr.ErrUnauthorized)
//	var he *apierr.HTTPError; errors.As(err, &he)
//	var ne *apierr.NetworkError; errors.As(err, &ne)
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrUnauthorized is returned when the backend rejects the session with 401.
// The credential has already been cleared by the time a caller sees it.
var ErrUnauthorized = stderrors.New("unauthorized: session expired")

// HTTPError is a non-2xx, non-401 response from the backend.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// IsRetryable reports whether a caller-side retry could plausibly succeed.
func (e *HTTPError) IsRetryable() bool {
	switch e.Status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// NetworkError wraps transport and decoding failures.
type NetworkError struct {
	Op   string
	Kind string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("network error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: network error (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Network error kinds.
const (
	KindTimeout     = "timeout"
	KindDNS         = "dns"
	KindConnRefused = "conn_refused"
	KindConnReset   = "conn_reset"
	KindTLS         = "tls"
	KindCanceled    = "canceled"
	KindDecode      = "decode"
	KindRateLimited = "rate_limited"
	KindOther       = "other"
)

// IsUnauthorized is shorthand for errors.Is(err, ErrUnauthorized).
func IsUnauthorized(err error) bool {
	return stderrors.Is(err, ErrUnauthorized)
}

// AsHTTPError extracts an *HTTPError from the chain.
func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// AsNetworkError extracts a *NetworkError from the chain.
func AsNetworkError(err error) (*NetworkError, bool) {
	var ne *NetworkError
	if stderrors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}
