package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/cubist/internal/cube"
)

const parquetExt = ".parquet"

// DirStore keeps one Parquet file per key under a directory.
// Files are written to a temporary name and renamed into place, so a
// reader never observes a partially written artifact.
type DirStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// OpenDir creates dir if needed and returns a store rooted there.
func OpenDir(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &DirStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the root directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *DirStore) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+parquetExt), nil
}

// Put writes the artifact to a temporary file and renames it over the
// previous one.
func (s *DirStore) Put(ctx context.Context, a *cube.Artifact) error {
	path, err := s.path(a.Key)
	if err != nil {
		return err
	}
	data, err := EncodeParquet(a)
	if err != nil {
		return fmt.Errorf("put %s: %w", a.Key, err)
	}

	l := s.keyLock(a.Key)
	l.Lock()
	defer l.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+a.Key+"-*.tmp")
	if err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("close temp file: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return cube.NewPartialWriteError(a.Key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return cube.NewPartialWriteError(a.Key, fmt.Errorf("rename: %w", err))
	}
	committed = true
	return nil
}

// Get reads and verifies the artifact under key.
func (s *DirStore) Get(ctx context.Context, key string) (*cube.Artifact, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, cube.NewNotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	a, err := DecodeParquet(data)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if a.Key != key {
		return nil, fmt.Errorf("get %s: file holds artifact %q", key, a.Key)
	}
	return a, nil
}

// Keys lists the stored keys, skipping temporary files.
func (s *DirStore) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, parquetExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, parquetExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (s *DirStore) Close() error {
	return nil
}

// checkKey rejects keys that cannot be safe file or object names.
func checkKey(key string) error {
	if key == "" {
		return cube.NewConfigError("empty subset key")
	}
	for _, r := range key {
		if r != '_' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return cube.NewConfigError("subset key %q contains %q", key, r)
		}
	}
	return nil
}

var _ Store = (*DirStore)(nil)
