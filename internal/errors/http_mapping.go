package errors

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"dashsync-go/internal/constants"
	"github.com/tidwall/gjson"
)

// MapHTTPError builds an HTTPError from a rejected response.
// The message is taken from the structured body when possible and falls back to
// a generic "HTTP error <status>" otherwise.
func MapHTTPError(status int, body []byte) *HTTPError {
	msg, code := extractMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP error %d", status)
	}
	if code == "" {
		code = codeForStatus(status)
	}
	return &HTTPError{Status: status, Code: code, Message: msg}
}

func extractMessage(body []byte) (string, string) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", ""
	}
	code := gjson.GetBytes(body, "error.code").String()
	if code == "" {
		code = gjson.GetBytes(body, "code").String()
	}
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		res := gjson.GetBytes(body, path)
		if res.Type == gjson.String && strings.TrimSpace(res.Str) != "" {
			return truncate(res.Str), code
		}
	}
	return "", code
}

// truncate cuts msg on a rune boundary.
func truncate(msg string) string {
	if len(msg) <= constants.MaxErrorMessageLength {
		return msg
	}
	cut := constants.MaxErrorMessageLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if status >= 500 {
		return "server_error"
	}
	return ""
}
