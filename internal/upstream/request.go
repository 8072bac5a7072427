package upstream

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

// ErrRequestConsumed is returned when a Request is passed to Send twice.
var ErrRequestConsumed = errors.New("upstream: request already sent")

// Request describes one backend call. It is immutable once built and may be
// sent exactly once.
type Request struct {
	method   string
	path     string
	query    url.Values
	body     []byte
	header   http.Header
	buildErr error

	consumed atomic.Bool
}

// RequestOption customizes a Request under construction.
type RequestOption func(*Request)

// NewRequest builds a request for path, relative to the client's base URL.
func NewRequest(method, path string, opts ...RequestOption) *Request {
	r := &Request{
		method: strings.ToUpper(strings.TrimSpace(method)),
		path:   "/" + strings.TrimLeft(strings.TrimSpace(path), "/"),
		header: make(http.Header),
	}
	if r.method == "" {
		r.method = http.MethodGet
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithJSON sets a pre-encoded JSON body.
func WithJSON(body []byte) RequestOption {
	return func(r *Request) {
		r.body = append([]byte(nil), body...)
	}
}

// WithBody marshals v as the JSON body.
func WithBody(v any) RequestOption {
	return func(r *Request) {
		data, err := json.Marshal(v)
		if err != nil {
			r.buildErr = err
			return
		}
		r.body = data
	}
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) RequestOption {
	return func(r *Request) {
		if r.query == nil {
			r.query = make(url.Values)
		}
		r.query.Add(key, value)
	}
}

// WithHeader overrides a header on this request only.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		r.header.Set(key, value)
	}
}

func (r *Request) Method() string { return r.method }
func (r *Request) Path() string   { return r.path }

// Query returns a copy of the query parameters.
func (r *Request) Query() url.Values {
	out := make(url.Values, len(r.query))
	for k, v := range r.query {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// consume marks the request as sent, reporting false if it already was.
func (r *Request) consume() bool {
	return r.consumed.CompareAndSwap(false, true)
}

func (r *Request) String() string {
	return r.method + " " + r.path
}
