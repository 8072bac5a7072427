package storage

import (
	"context"
	"errors"
)

// KV is the durable key-value capability behind the credential store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrNotFound is returned when a key is not found
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsNotFound reports whether err is (or wraps) an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
