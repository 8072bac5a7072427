package upstream

import "encoding/json"

// Session is the result of a successful login or registration.
type Session struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

// RegisterInput is the payload for POST /auth/register.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Company  string
}

// CreateAPIInput is the payload for POST /apis.
type CreateAPIInput struct {
	Name        string
	Description string
	BaseURL     string
	Version     string
}

// CreateAPIKeyInput is the payload for POST /api-keys.
type CreateAPIKeyInput struct {
	Name        string
	APIID       string
	Permissions []string
}
