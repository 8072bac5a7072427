package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dashsync-go/internal/constants"
	apierr "dashsync-go/internal/errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var tokenPaths = []string{"token", "access_token", "data.token"}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body, err := buildJSON(map[string]any{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	return c.authenticate(ctx, NewRequest(http.MethodPost, "/auth/login", WithJSON(body)))
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	fields := map[string]any{"name": in.Name, "email": in.Email, "password": in.Password}
	if in.Company != "" {
		fields["company"] = in.Company
	}
	body, err := buildJSON(fields)
	if err != nil {
		return nil, err
	}
	return c.authenticate(ctx, NewRequest(http.MethodPost, "/auth/register", WithJSON(body)))
}

func (c *Client) authenticate(ctx context.Context, req *Request) (*Session, error) {
	raw, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	token := extractToken(raw)
	if token == "" {
		return nil, apierr.DecodeError(req.String(), errors.New("response carries no token"))
	}
	c.tokens.Set(ctx, token)
	sess := &Session{Token: token}
	for _, path := range []string{"user", "data.user"} {
		if u := gjson.GetBytes(raw, path); u.Exists() && u.IsObject() {
			sess.User = json.RawMessage(u.Raw)
			break
		}
	}
	return sess, nil
}

func extractToken(raw []byte) string {
	for _, path := range tokenPaths {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return strings.TrimSpace(v.Str)
		}
	}
	return ""
}

// Logout forgets the credential locally. No request is sent.
func (c *Client) Logout(ctx context.Context) {
	c.tokens.Clear(ctx)
}

// Me returns the current user's profile.
func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	req := NewRequest(http.MethodGet, "/auth/me")
	raw, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if u := gjson.GetBytes(raw, "user"); u.IsObject() {
		raw = json.RawMessage(u.Raw)
	}
	return decodeObject(req.String(), raw)
}

// DashboardStats returns GET /dashboard/stats.
func (c *Client) DashboardStats(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, NewRequest(http.MethodGet, "/dashboard/stats"))
}

// AnalyticsOverview returns GET /analytics/overview for period (default "7d").
func (c *Client) AnalyticsOverview(ctx context.Context, period string) (map[string]any, error) {
	if strings.TrimSpace(period) == "" {
		period = constants.DefaultAnalyticsPeriod
	}
	return c.getObject(ctx, NewRequest(http.MethodGet, "/analytics/overview", WithQuery("period", period)))
}

// BillingSummary returns GET /billing/summary.
func (c *Client) BillingSummary(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, NewRequest(http.MethodGet, "/billing/summary"))
}

// ListAPIs returns GET /apis.
func (c *Client) ListAPIs(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, NewRequest(http.MethodGet, "/apis"), "apis")
}

// CreateAPI registers a new API and returns the created entry.
func (c *Client) CreateAPI(ctx context.Context, in CreateAPIInput) (map[string]any, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("upstream: api name is required")
	}
	fields := map[string]any{"name": in.Name}
	if in.Description != "" {
		fields["description"] = in.Description
	}
	if in.BaseURL != "" {
		fields["base_url"] = in.BaseURL
	}
	if in.Version != "" {
		fields["version"] = in.Version
	}
	body, err := buildJSON(fields)
	if err != nil {
		return nil, err
	}
	return c.getObject(ctx, NewRequest(http.MethodPost, "/apis", WithJSON(body)))
}

// ListAPIKeys returns GET /api-keys.
func (c *Client) ListAPIKeys(ctx context.Context) ([]map[string]any, error) {
	return c.getList(ctx, NewRequest(http.MethodGet, "/api-keys"), "api_keys")
}

// CreateAPIKey issues a new key and returns the created entry.
func (c *Client) CreateAPIKey(ctx context.Context, in CreateAPIKeyInput) (map[string]any, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("upstream: api key name is required")
	}
	fields := map[string]any{"name": in.Name}
	if in.APIID != "" {
		fields["api_id"] = in.APIID
	}
	if len(in.Permissions) > 0 {
		fields["permissions"] = in.Permissions
	}
	body, err := buildJSON(fields)
	if err != nil {
		return nil, err
	}
	return c.getObject(ctx, NewRequest(http.MethodPost, "/api-keys", WithJSON(body)))
}

func (c *Client) getObject(ctx context.Context, req *Request) (map[string]any, error) {
	raw, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeObject(req.String(), raw)
}

// getList accepts a bare array or an envelope keyed by key, "data" or "items".
func (c *Client) getList(ctx context.Context, req *Request, key string) ([]map[string]any, error) {
	raw, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(raw)
	if root.Type == gjson.Null {
		return []map[string]any{}, nil
	}
	if !root.IsArray() {
		found := false
		for _, path := range []string{key, "data", "items"} {
			if v := root.Get(path); v.IsArray() {
				root = v
				found = true
				break
			}
		}
		if !found {
			return nil, apierr.DecodeError(req.String(), errors.New("expected a JSON array"))
		}
	}
	out := make([]map[string]any, 0, len(root.Array()))
	if err := json.Unmarshal([]byte(root.Raw), &out); err != nil {
		return nil, apierr.DecodeError(req.String(), err)
	}
	return out, nil
}

func decodeObject(op string, raw []byte) (map[string]any, error) {
	root := gjson.ParseBytes(raw)
	if root.Type == gjson.Null {
		return map[string]any{}, nil
	}
	if !root.IsObject() {
		return nil, apierr.DecodeError(op, errors.New("expected a JSON object"))
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apierr.DecodeError(op, err)
	}
	return out, nil
}

// buildJSON assembles a request body key by key with sjson.
func buildJSON(fields map[string]any) ([]byte, error) {
	body := []byte(`{}`)
	for key, value := range fields {
		var err error
		body, err = sjson.SetBytes(body, key, value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
	}
	return body, nil
}
