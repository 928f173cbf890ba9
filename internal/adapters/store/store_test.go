package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func backends(t *testing.T) map[string]core.KeyValueStore {
	t.Helper()
	logger := zap.NewNop()

	fileStore, err := NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sift.db"), logger)
	require.NoError(t, err)
	t.Cleanup(sqliteStore.Stop)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisStore := NewRedisStoreWithClient(client, "sift:", logger)
	t.Cleanup(redisStore.Stop)

	return map[string]core.KeyValueStore{
		"memory": NewMemoryStore(logger),
		"file":   fileStore,
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func TestStoreGetPut(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "settings/alice%40example.com")
			assert.ErrorIs(t, err, core.ErrKeyNotFound)

			require.NoError(t, s.Put(ctx, "settings/alice%40example.com", []byte(`{"shadow":true}`)))
			value, err := s.Get(ctx, "settings/alice%40example.com")
			require.NoError(t, err)
			assert.JSONEq(t, `{"shadow":true}`, string(value))

			require.NoError(t, s.Put(ctx, "settings/alice%40example.com", []byte(`{"shadow":false}`)))
			value, err = s.Get(ctx, "settings/alice%40example.com")
			require.NoError(t, err)
			assert.JSONEq(t, `{"shadow":false}`, string(value))
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "rules/bob%40example.com"

			err := s.Update(ctx, key, func(current []byte) ([]byte, error) {
				assert.Nil(t, current)
				return []byte("1"), nil
			})
			require.NoError(t, err)

			err = s.Update(ctx, key, func(current []byte) ([]byte, error) {
				assert.Equal(t, "1", string(current))
				return []byte("2"), nil
			})
			require.NoError(t, err)

			boom := errors.New("boom")
			err = s.Update(ctx, key, func(current []byte) ([]byte, error) {
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)

			value, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "2", string(value))
		})
	}
}

func TestStoreConcurrentUpdates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "counter/shared"

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, key, func(current []byte) ([]byte, error) {
						n := 0
						if current != nil {
							fmt.Sscanf(string(current), "%d", &n)
						}
						return []byte(fmt.Sprintf("%d", n+1)), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			value, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "10", string(value))
		})
	}
}

func TestStoreLogAndDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "logs/carol%40example.com"

			lines, err := s.ReadLines(ctx, key)
			require.NoError(t, err)
			assert.Empty(t, lines)

			require.NoError(t, s.Append(ctx, key, []byte(`{"event":"a"}`)))
			require.NoError(t, s.Append(ctx, key, []byte(`{"event":"b"}`)))
			require.NoError(t, s.Put(ctx, key, []byte(`{}`)))

			lines, err = s.ReadLines(ctx, key)
			require.NoError(t, err)
			require.Len(t, lines, 2)
			assert.Equal(t, `{"event":"a"}`, string(lines[0]))
			assert.Equal(t, `{"event":"b"}`, string(lines[1]))

			require.NoError(t, s.Delete(ctx, key))
			require.NoError(t, s.Delete(ctx, key))

			lines, err = s.ReadLines(ctx, key)
			require.NoError(t, err)
			assert.Empty(t, lines)
			_, err = s.Get(ctx, key)
			assert.ErrorIs(t, err, core.ErrKeyNotFound)
		})
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape", []byte("x"))
	assert.Error(t, err)
	_, err = s.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}

func TestFileStoreAcceptsDottedAccounts(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	key := core.AccountKey(core.NamespaceRules, "a..b@x.com")
	require.NoError(t, s.Put(ctx, key, []byte(`{"allow":[]}`)))
	value, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"allow":[]}`, string(value))

	logKey := core.AccountKey(core.NamespaceLogs, "..")
	require.NoError(t, s.Append(ctx, logKey, []byte(`{"event":"mode_set"}`)))
	lines, err := s.ReadLines(ctx, logKey)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestFileStoreSkipsOversizedLogLines(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "logs/a", []byte(`{"event":"first"}`)))
	require.NoError(t, s.Append(ctx, "logs/a", bytes.Repeat([]byte("x"), maxLogLine+10)))
	require.NoError(t, s.Append(ctx, "logs/a", []byte(`{"event":"last"}`)))

	lines, err := s.ReadLines(ctx, "logs/a")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"event":"first"}`, string(lines[0]))
	assert.Equal(t, `{"event":"last"}`, string(lines[1]))
}
