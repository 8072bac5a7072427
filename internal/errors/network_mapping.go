package errors

import (
	"context"
	stderrors "errors"
	"net"
	"net/url"
	"strings"
)

// MapNetworkError wraps a transport failure with a classified kind.
func MapNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Kind: classify(err), Err: err}
}

// DecodeError wraps a malformed success body.
func DecodeError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Kind: KindDecode, Err: err}
}

func classify(err error) string {
	if err == nil {
		return KindOther
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ue *url.Error
	if stderrors.As(err, &ue) && ue.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return KindDNS
	}
	s := err.Error()
	switch {
	case strings.Contains(s, "timeout"):
		return KindTimeout
	case strings.Contains(s, "no such host"):
		return KindDNS
	case strings.Contains(s, "connection refused"):
		return KindConnRefused
	case strings.Contains(s, "connection reset"), strings.Contains(s, "broken pipe"), strings.Contains(s, "EOF"):
		return KindConnReset
	case strings.Contains(s, "certificate"), strings.Contains(s, "tls"):
		return KindTLS
	}
	return KindOther
}
