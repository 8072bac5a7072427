package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecrypt is returned when an encrypted value cannot be opened with the configured key.
var ErrDecrypt = errors.New("storage: cannot decrypt value")

// FileKV persists all keys in a single JSON document, rewritten atomically on
// every change. With a passphrase, values are sealed with nacl/secretbox.
type FileKV struct {
	mu   sync.Mutex
	path string
	key  *[32]byte
	data map[string]string
}

// NewFileKV opens (or lazily creates) the document at path. An empty
// passphrase stores values in clear text.
func NewFileKV(path, passphrase string) (*FileKV, error) {
	if path == "" {
		return nil, errors.New("storage: file path is empty")
	}
	f := &FileKV{path: path, data: make(map[string]string)}
	if passphrase != "" {
		sum := sha256.Sum256([]byte(passphrase))
		f.key = &sum
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileKV) load() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return fmt.Errorf("parse %s: %w", f.path, err)
	}
	return nil
}

func (f *FileKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	stored, ok := f.data[key]
	f.mu.Unlock()
	if !ok {
		return "", &ErrNotFound{Key: key}
	}
	return f.open(stored)
}

func (f *FileKV) Set(_ context.Context, key, value string) error {
	sealed, err := f.seal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	f.data[key] = sealed
	if err := f.persistLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.persistLocked(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *FileKV) Close() error { return nil }

func (f *FileKV) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileKV) seal(value string) (string, error) {
	if f.key == nil {
		return value, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(value), &nonce, f.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (f *FileKV) open(stored string) (string, error) {
	if f.key == nil {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) < 24 {
		return "", ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, f.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
