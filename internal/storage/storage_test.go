package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/config"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "voice_analytics")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "voice_analytics", `{"commands":[]}`))
	got, ok, err := store.Get(ctx, "voice_analytics")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"commands":[]}`, got)

	require.NoError(t, store.Set(ctx, "voice_analytics", "not json"))
	got, _, err = store.Get(ctx, "voice_analytics")
	require.NoError(t, err)
	require.Equal(t, "not json", got)

	require.NoError(t, store.Remove(ctx, "voice_analytics"))
	require.NoError(t, store.Remove(ctx, "voice_analytics"))
	_, ok, err = store.Get(ctx, "voice_analytics")
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, store.Set(ctx, "../escape", "x"))
	require.Error(t, store.Set(ctx, "", "x"))
}

func TestStores(t *testing.T) {
	tests := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{name: "memory", open: func(*testing.T) Store { return NewMemory() }},
		{name: "file", open: func(t *testing.T) Store {
			s, err := NewFile(filepath.Join(t.TempDir(), "store"))
			require.NoError(t, err)
			return s
		}},
		{name: "sqlite", open: func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nexa.db"))
			require.NoError(t, err)
			return s
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.open(t)
			defer func() { require.NoError(t, store.Close()) }()
			exerciseStore(t, store)
		})
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("NEXA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set NEXA_TEST_REDIS_ADDR to run redis storage tests")
	}
	store, err := OpenRedis(context.Background(), RedisOptions{Addr: addr, Prefix: "nexa-test:"})
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()
	exerciseStore(t, store)
}

func TestOpenRedisRequiresAddress(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisOptions{})
	require.ErrorContains(t, err, "redis address is empty")
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "nexa.db")
	ctx := context.Background()

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "voice_feedback_queue", "[1]"))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()
	got, ok, err := store.Get(ctx, "voice_feedback_queue")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "[1]", got)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFile(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, store.Set(context.Background(), "voice_session_data", string(rune('a'+i))))
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "voice_session_data.json", entries[0].Name())
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Options{Backend: BackendFile, Path: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &File{}, s)

	s, err = Open(ctx, Options{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "db.sqlite")})
	require.NoError(t, err)
	require.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Backend: "etcd"})
	require.ErrorContains(t, err, "unknown storage backend")

	_, err = Open(ctx, Options{Backend: BackendFile})
	require.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.StorageConfig{
		Backend:     "redis",
		RedisAddr:   "localhost:6379",
		RedisDB:     2,
		RedisPrefix: "nexa:",
	})
	require.Equal(t, Options{Backend: BackendRedis, RedisAddr: "localhost:6379", RedisDB: 2, RedisPrefix: "nexa:"}, opts)
}
