package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

const maxUpdateRetries = 16

// RedisStore keeps values as strings and logs as lists
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(addr, password string, db int, prefix string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix, logger), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) valueKey(key string) string { return s.prefix + key }

func (s *RedisStore) logKey(key string) string { return s.prefix + key + ":log" }

// Get retrieves the value of a key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return value, nil
}

// Put stores the value of a key
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.valueKey(key), nonNil(value), 0).Err(); err != nil {
		return fmt.Errorf("failed to set record: %w", err)
	}
	return nil
}

// Update replaces the value of a key with optimistic locking, retrying when
// another writer changes the key between read and write.
func (s *RedisStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	k := s.valueKey(key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return fmt.Errorf("failed to get record: %w", err)
			}
			current = nil
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, nonNil(next), 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("Retrying contended update", zap.String("key", key), zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("update of %s aborted after %d attempts: %w", key, maxUpdateRetries, redis.TxFailedErr)
}

// Append adds a line to the log of a key
func (s *RedisStore) Append(ctx context.Context, key string, line []byte) error {
	if err := s.client.RPush(ctx, s.logKey(key), nonNil(line)).Err(); err != nil {
		return fmt.Errorf("failed to append log line: %w", err)
	}
	return nil
}

// ReadLines returns the log of a key, oldest first
func (s *RedisStore) ReadLines(ctx context.Context, key string) ([][]byte, error) {
	values, err := s.client.LRange(ctx, s.logKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	lines := make([][]byte, 0, len(values))
	for _, v := range values {
		lines = append(lines, []byte(v))
	}
	return lines, nil
}

// Delete removes the value and the log of a key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.valueKey(key), s.logKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Stop closes the Redis client
func (s *RedisStore) Stop() {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
