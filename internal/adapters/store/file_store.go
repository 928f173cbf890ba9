package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mikey/sift-mail/internal/core"
	"go.uber.org/zap"
)

const maxLogLine = 1 << 20

// FileStore keeps one file per key below a data directory. Values are written
// to "<key>.json", logs to "<key>.jsonl".
type FileStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewFileStore creates a new file store rooted at dir
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Get reads the value of a key
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key, ".json")
	if err != nil {
		return nil, err
	}
	lock := s.lock(key)
	lock.Lock()
	defer lock.Unlock()

	return readValue(path)
}

// Put writes the value of a key
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	path, err := s.path(key, ".json")
	if err != nil {
		return err
	}
	lock := s.lock(key)
	lock.Lock()
	defer lock.Unlock()

	return writeAtomic(path, value)
}

// Update atomically replaces the value of a key
func (s *FileStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	path, err := s.path(key, ".json")
	if err != nil {
		return err
	}
	lock := s.lock(key)
	lock.Lock()
	defer lock.Unlock()

	current, err := readValue(path)
	if err != nil && !errors.Is(err, core.ErrKeyNotFound) {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return writeAtomic(path, next)
}

// Append adds one line to the log of a key
func (s *FileStore) Append(ctx context.Context, key string, line []byte) error {
	path, err := s.path(key, ".jsonl")
	if err != nil {
		return err
	}
	lock := s.lock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	line = bytes.TrimRight(line, "\n")
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append log line: %w", err)
	}
	return nil
}

// ReadLines returns every non-empty line of the log of a key
func (s *FileStore) ReadLines(ctx context.Context, key string) ([][]byte, error) {
	path, err := s.path(key, ".jsonl")
	if err != nil {
		return nil, err
	}
	lock := s.lock(key)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return [][]byte{}, nil
		}
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	lines := make([][]byte, 0)
	reader := bufio.NewReaderSize(f, 64*1024)
	for {
		line, tooLong, err := readLogLine(reader, maxLogLine)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		if tooLong {
			s.logger.Warn("Skipping oversized log line", zap.String("key", key), zap.Int("limit", maxLogLine))
		} else if line = bytes.TrimSpace(line); len(line) > 0 {
			lines = append(lines, line)
		}
		if err != nil {
			return lines, nil
		}
	}
}

// readLogLine reads one line of at most limit bytes. Longer lines are
// consumed and reported as tooLong.
func readLogLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong && len(line)+len(chunk) <= limit {
			line = append(line, chunk...)
		} else {
			tooLong = true
			line = nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, tooLong, err
		}
	}
}

// Delete removes the value and the log of a key
func (s *FileStore) Delete(ctx context.Context, key string) error {
	lock := s.lock(key)
	lock.Lock()
	defer lock.Unlock()

	for _, ext := range []string{".json", ".jsonl"} {
		path, err := s.path(key, ext)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}
	s.logger.Debug("Deleted file store key", zap.String("key", key))
	return nil
}

func (s *FileStore) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *FileStore) path(key, ext string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid store key %q", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("invalid store key %q", key)
		}
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)+ext), nil
}

func readValue(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// writeAtomic replaces path through a temporary file and rename
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
