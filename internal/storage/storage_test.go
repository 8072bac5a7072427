package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dashsync-go/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "auth_token")
	require.True(t, IsNotFound(err))

	require.NoError(t, kv.Set(ctx, "auth_token", "T1"))
	v, err := kv.Get(ctx, "auth_token")
	require.NoError(t, err)
	require.Equal(t, "T1", v)

	require.NoError(t, kv.Set(ctx, "auth_token", "T2"))
	v, err = kv.Get(ctx, "auth_token")
	require.NoError(t, err)
	require.Equal(t, "T2", v)

	require.NoError(t, kv.Delete(ctx, "auth_token"))
	require.NoError(t, kv.Delete(ctx, "auth_token"))
	_, err = kv.Get(ctx, "auth_token")
	require.True(t, IsNotFound(err))
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestFileKVPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	kv, err := NewFileKV(path, "")
	require.NoError(t, err)
	exerciseKV(t, kv)

	require.NoError(t, kv.Set(context.Background(), "auth_token", "persisted"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := NewFileKV(path, "")
	require.NoError(t, err)
	v, err := reopened.Get(context.Background(), "auth_token")
	require.NoError(t, err)
	require.Equal(t, "persisted", v)
}

func TestFileKVEncryptsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	kv, err := NewFileKV(path, "correct horse")
	require.NoError(t, err)
	exerciseKV(t, kv)
	require.NoError(t, kv.Set(context.Background(), "auth_token", "secret-token"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "secret-token"))

	same, err := NewFileKV(path, "correct horse")
	require.NoError(t, err)
	v, err := same.Get(context.Background(), "auth_token")
	require.NoError(t, err)
	require.Equal(t, "secret-token", v)

	wrong, err := NewFileKV(path, "battery staple")
	require.NoError(t, err)
	_, err = wrong.Get(context.Background(), "auth_token")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestFileKVRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileKV(path, "")
	require.Error(t, err)
}

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	kv, err := NewRedisKV(context.Background(), RedisOptions{Addr: mr.Addr(), Prefix: "test:", TTL: time.Hour})
	require.NoError(t, err)
	defer kv.Close()
	exerciseKV(t, kv)

	require.NoError(t, kv.Set(context.Background(), "auth_token", "R1"))
	got, err := mr.Get("test:auth_token")
	require.NoError(t, err)
	require.Equal(t, "R1", got)
	require.Equal(t, time.Hour, mr.TTL("test:auth_token"))
}

func TestOpenFallsBackToMemory(t *testing.T) {
	kv := Open(context.Background(), config.StorageConfig{Backend: "redis", RedisAddr: "127.0.0.1:1"})
	require.NotNil(t, kv)
	exerciseKV(t, kv)
}

func TestOpenFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	kv := Open(context.Background(), config.StorageConfig{Backend: "file", FilePath: path})
	require.NoError(t, kv.Set(context.Background(), "auth_token", "F1"))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
