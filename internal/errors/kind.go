package errors

import "fmt"

// Kind returns a short label for logs and metrics.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	if IsUnauthorized(err) {
		return "unauthorized"
	}
	if he, ok := AsHTTPError(err); ok {
		return fmt.Sprintf("http_%dxx", he.Status/100)
	}
	if ne, ok := AsNetworkError(err); ok {
		return "network_" + ne.Kind
	}
	return "error"
}
