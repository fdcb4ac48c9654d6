package store

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/roach88/cubist/internal/cube"
)

// createTestStore creates a SQLite store in a temp dir.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestArtifact builds a borough__year artifact with a valid hash.
func createTestArtifact(killed ...int64) *cube.Artifact {
	a := &cube.Artifact{
		Key:          "borough__year",
		Dimensions:   []string{"borough", "year"},
		Measures:     []string{"killed"},
		SnapshotHash: "snapshot-1",
	}
	boroughs := []string{"BRONX", "QUEENS", "STATEN ISLAND"}
	for i, k := range killed {
		a.Rows = append(a.Rows, cube.Row{
			Values:   []cube.Value{cube.String(boroughs[i%len(boroughs)]), cube.Int(2020 + int64(i))},
			Measures: []int64{k},
			Count:    k + 1,
		})
	}
	a.ContentHash = cube.MustArtifactHash(a)
	return a
}

// memObjects is an in-memory ObjectClient.
type memObjects struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{buckets: make(map[string]bool), objects: make(map[string][]byte)}
}

func (m *memObjects) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = buf.Bytes()
	return nil
}

func (m *memObjects) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (m *memObjects) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		name, ok := strings.CutPrefix(k, bucket+"/")
		if ok && strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memObjects) EnsureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	return nil
}

// eachBackend runs fn against a fresh instance of every backend.
func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, createTestStore(t))
	})
	t.Run("dir", func(t *testing.T) {
		s, err := OpenDir(filepath.Join(t.TempDir(), "artifacts"))
		if err != nil {
			t.Fatalf("OpenDir() failed: %v", err)
		}
		fn(t, s)
	})
	t.Run("s3", func(t *testing.T) {
		s, err := NewObjectStore(context.Background(), newMemObjects(), "cubist", "collisions/v1")
		if err != nil {
			t.Fatalf("NewObjectStore() failed: %v", err)
		}
		fn(t, s)
	})
}
