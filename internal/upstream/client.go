package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dashsync-go/internal/config"
	"dashsync-go/internal/constants"
	apierr "dashsync-go/internal/errors"
	"dashsync-go/internal/events"
	"dashsync-go/internal/logging"
	"dashsync-go/internal/monitoring"
	"dashsync-go/internal/monitoring/tracing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// TokenStore is the credential capability the client borrows per request.
type TokenStore interface {
	Get(ctx context.Context) (string, bool)
	Set(ctx context.Context, token string)
	Clear(ctx context.Context)
	// Invalidate clears the token, returning true only for the first caller
	// per credential lifetime.
	Invalidate(ctx context.Context) bool
}

// SessionExpired is the payload published on events.TopicSessionExpired.
type SessionExpired struct {
	Method string    `json:"method"`
	Path   string    `json:"path"`
	At     time.Time `json:"at"`
}

// Client sends authenticated requests to the dashboard backend.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	tokens    TokenStore
	publisher events.Publisher
	limiter   *rate.Limiter
	userAgent string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithPublisher wires the hub that receives session.expired.
func WithPublisher(p events.Publisher) Option {
	return func(c *Client) { c.publisher = p }
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL. tokens must not be nil.
func New(baseURL string, tokens TokenStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s), got %q", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("upstream: token store is required")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	c := &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: constants.DefaultRequestTimeout},
		tokens:    tokens,
		userAgent: "dashsync-go",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig builds a client with a tuned transport from the backend config domain.
func NewFromConfig(cfg config.BackendConfig, tokens TokenStore, opts ...Option) (*Client, error) {
	tr := &http.Transport{
		Proxy: proxyFunc(cfg.ProxyURL),
		DialContext: (&net.Dialer{
			Timeout:   durationOr(cfg.DialTimeout, constants.DefaultDialTimeout),
			KeepAlive: constants.DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   durationOr(cfg.TLSHandshakeTimeout, constants.DefaultTLSHandshakeTimeout),
		ResponseHeaderTimeout: durationOr(cfg.ResponseHeaderTimeout, constants.DefaultResponseHeaderTimeout),
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		MaxIdleConns:          constants.MaxIdleConns,
		MaxIdleConnsPerHost:   constants.MaxIdleConnsPerHost,
		IdleConnTimeout:       constants.IdleConnTimeout,
	}
	hc := &http.Client{
		Transport: tr,
		Timeout:   durationOr(cfg.RequestTimeout, constants.DefaultRequestTimeout),
	}
	base := []Option{WithHTTPClient(hc), WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)}
	return New(cfg.BaseURL, tokens, append(base, opts...)...)
}

func proxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsed)
		}
	}
	return http.ProxyFromEnvironment
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// BaseURL returns a copy of the configured base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Tokens exposes the credential store the client reads from.
func (c *Client) Tokens() TokenStore { return c.tokens }

// Send performs req and returns the raw JSON body of a 2xx response.
//
// A 401 clears the credential, publishes session.expired (once per
// credential) and fails with apierr.ErrUnauthorized. Other non-2xx statuses
// fail with *apierr.HTTPError; transport and decode failures with
// *apierr.NetworkError. Nothing is retried.
func (c *Client) Send(ctx context.Context, req *Request) (json.RawMessage, error) {
	if req == nil {
		return nil, errors.New("upstream: nil request")
	}
	if !req.consume() {
		return nil, ErrRequestConsumed
	}
	if req.buildErr != nil {
		return nil, fmt.Errorf("%s: encode body: %w", req, req.buildErr)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	op := req.String()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &apierr.NetworkError{Op: op, Kind: apierr.KindRateLimited, Err: err}
		}
	}

	ctx, span := tracing.StartSpan(ctx, "upstream", "Dispatcher.Send",
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("http.route", req.path),
		))

	body, status, err := c.roundTrip(ctx, req)
	span.SetAttributes(attribute.Int("http.status_code", status))
	tracing.Finish(span, err)
	monitoring.UpstreamRequestsTotal.WithLabelValues(req.method, apierr.Kind(err)).Inc()
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (json.RawMessage, int, error) {
	op := req.String()
	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + req.path
	if len(req.query) > 0 {
		endpoint.RawQuery = req.query.Encode()
	}

	var payload io.Reader
	if req.body != nil {
		payload = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint.String(), payload)
	if err != nil {
		return nil, 0, apierr.MapNetworkError(op, err)
	}
	c.applyHeaders(ctx, httpReq, req)
	requestID := httpReq.Header.Get("X-Request-ID")
	entry := logging.WithRequest(req.method, req.path, requestID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	monitoring.UpstreamRequestDuration.WithLabelValues(req.method).Observe(elapsed.Seconds())
	if err != nil {
		nerr := apierr.MapNetworkError(op, err)
		entry.WithError(err).WithFields(log.Fields{
			"kind":        nerr.Kind,
			"duration_ms": logging.DurationMS(elapsed),
		}).Warn("backend request failed")
		return nil, 0, nerr
	}
	data, readErr := readAll(resp)
	entry = entry.WithFields(log.Fields{
		"status":      resp.StatusCode,
		"duration_ms": logging.DurationMS(elapsed),
	})

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.expireSession(ctx, req)
		entry.Warn("backend rejected credential")
		return nil, resp.StatusCode, fmt.Errorf("%s: %w", op, apierr.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		herr := apierr.MapHTTPError(resp.StatusCode, data)
		entry.WithField("error_kind", logging.ErrorKind(resp.StatusCode, true)).Info("backend returned error status")
		return nil, resp.StatusCode, herr
	}

	if readErr != nil {
		return nil, resp.StatusCode, apierr.MapNetworkError(op, readErr)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		entry.Debug("backend request completed")
		return json.RawMessage("null"), resp.StatusCode, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, resp.StatusCode, apierr.DecodeError(op, errors.New("response body is not valid JSON"))
	}
	entry.Debug("backend request completed")
	return json.RawMessage(trimmed), resp.StatusCode, nil
}

func (c *Client) applyHeaders(ctx context.Context, httpReq *http.Request, req *Request) {
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if token, ok := c.tokens.Get(ctx); ok {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}
	for key, values := range HeaderOverrides(ctx) {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for key, values := range req.header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
}

func (c *Client) expireSession(ctx context.Context, req *Request) {
	if !c.tokens.Invalidate(ctx) {
		return
	}
	monitoring.SessionExpiredTotal.Inc()
	log.WithFields(log.Fields{"method": req.method, "path": req.path}).Warn("session expired, credential cleared")
	if c.publisher != nil {
		c.publisher.Publish(context.Background(), events.TopicSessionExpired, SessionExpired{
			Method: req.method,
			Path:   req.path,
			At:     time.Now().UTC(),
		}, nil)
	}
}

// Do sends req and decodes the JSON body into out (which may be nil).
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	raw, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.DecodeError(req.String(), err)
	}
	return nil
}
