package store

import (
	"context"
	"sync"

	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the KeyValueStore interface
type MemoryStore struct {
	values map[string][]byte
	logs   map[string][][]byte
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		logs:   make(map[string][][]byte),
		logger: logger,
	}
}

// Get retrieves the value of a key
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}
	return cloneBytes(value), nil
}

// Put stores the value of a key
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = cloneBytes(value)
	return nil
}

// Update atomically replaces the value of a key
func (s *MemoryStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if value, ok := s.values[key]; ok {
		current = cloneBytes(value)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	s.values[key] = cloneBytes(next)
	return nil
}

// Append adds a line to the log of a key
func (s *MemoryStore) Append(ctx context.Context, key string, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[key] = append(s.logs[key], cloneBytes(line))
	return nil
}

// ReadLines returns the log of a key, oldest first
func (s *MemoryStore) ReadLines(ctx context.Context, key string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([][]byte, 0, len(s.logs[key]))
	for _, line := range s.logs[key] {
		lines = append(lines, cloneBytes(line))
	}
	return lines, nil
}

// Delete removes a key and its log
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	delete(s.logs, key)
	s.logger.Debug("Deleted memory store key", zap.String("key", key))
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
