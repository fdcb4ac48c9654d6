package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cubist/internal/cube"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := createTestArtifact(1, 2, 0)

		require.NoError(t, s.Put(ctx, a))

		got, err := s.Get(ctx, a.Key)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	})
}

func TestStore_GetMissing(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		_, err := s.Get(context.Background(), "borough")
		require.Error(t, err)
		assert.True(t, cube.IsNotFound(err))

		var e *cube.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "borough", e.Key)
	})
}

func TestStore_PutOverwrites(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, createTestArtifact(1, 2, 3)))

		smaller := createTestArtifact(7)
		smaller.SnapshotHash = "snapshot-2"
		require.NoError(t, s.Put(ctx, smaller))

		got, err := s.Get(ctx, smaller.Key)
		require.NoError(t, err)
		assert.Equal(t, smaller, got)
		assert.Len(t, got.Rows, 1)
	})
}

func TestStore_Keys(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		keys, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		for _, key := range []string{"year", "borough__year", "borough"} {
			a := createTestArtifact(1)
			a.Key = key
			a.ContentHash = cube.MustArtifactHash(a)
			require.NoError(t, s.Put(ctx, a))
		}

		keys, err = s.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"borough", "borough__year", "year"}, keys)
	})
}

func TestStore_RejectsUnsafeKey(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		a := createTestArtifact(1)
		a.Key = "../borough"
		err := s.Put(context.Background(), a)
		require.Error(t, err)
		assert.True(t, cube.IsConfigError(err))
	})
}

func TestStore_CancelledPutKeepsPrevious(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		previous := createTestArtifact(1, 2)
		require.NoError(t, s.Put(context.Background(), previous))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Put(ctx, createTestArtifact(9, 9, 9))
		require.Error(t, err)
		assert.True(t, cube.IsPartialWrite(err), "want partial write, got %v", err)

		got, err := s.Get(context.Background(), previous.Key)
		require.NoError(t, err)
		assert.Equal(t, previous, got)
	})
}

func TestStore_ConcurrentPutsSameKey(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		candidates := make(map[string]bool)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			a := createTestArtifact(int64(i), int64(i+1))
			candidates[a.ContentHash] = true
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Put(ctx, a))
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "borough__year")
		require.NoError(t, err)
		assert.True(t, candidates[got.ContentHash], "stored artifact must be one complete write")
	})
}

func TestStore_GetDuringPutSameKey(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v1 := createTestArtifact(1, 2)
		v2 := createTestArtifact(5, 6, 7)
		require.NoError(t, s.Put(ctx, v1))

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-done:
					return
				default:
				}
				next := v1
				if i%2 == 0 {
					next = v2
				}
				assert.NoError(t, s.Put(ctx, next))
			}
		}()

		for i := 0; i < 200; i++ {
			got, err := s.Get(ctx, v1.Key)
			if !assert.NoError(t, err, "read %d", i) {
				break
			}
			assert.Contains(t, []string{v1.ContentHash, v2.ContentHash}, got.ContentHash)
		}
		close(done)
		wg.Wait()
	})
}

func TestStore_GetDetectsTampering(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Put(ctx, createTestArtifact(1, 2)))

	_, err := s.db.Exec(`UPDATE artifact_rows SET count = count + 1 WHERE ordinal = 0`)
	require.NoError(t, err)

	_, err = s.Get(ctx, "borough__year")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content hash mismatch")
}

func TestDirStore_IgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".borough-123.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, s.Put(context.Background(), createTestArtifact(1)))

	keys, err := s.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"borough__year"}, keys)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp file left behind by Put")
}

func TestObjectStore_Prefix(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	s, err := NewObjectStore(ctx, objects, "cubist", "/collisions/")
	require.NoError(t, err)
	assert.True(t, objects.buckets["cubist"])

	require.NoError(t, s.Put(ctx, createTestArtifact(1)))
	assert.Contains(t, objects.objects, "cubist/collisions/borough__year.parquet")

	other, err := NewObjectStore(ctx, objects, "cubist", "elsewhere")
	require.NoError(t, err)
	keys, err := other.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = NewObjectStore(ctx, objects, "", "")
	assert.True(t, cube.IsConfigError(err))
}

func TestObjectStore_GetRejectsMisplacedObject(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	s, err := NewObjectStore(ctx, objects, "cubist", "")
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, createTestArtifact(1)))

	objects.objects["cubist/borough.parquet"] = objects.objects["cubist/borough__year.parquet"]

	_, err = s.Get(ctx, "borough")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `holds artifact "borough__year"`)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBackend(ctx, Options{Backend: BackendSQLite, Path: filepath.Join(dir, "a.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.Equal(t, BackendSQLite, BackendOf(s))
	require.NoError(t, s.Close())

	s, err = OpenBackend(ctx, Options{Backend: BackendDir, Dir: filepath.Join(dir, "artifacts")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &DirStore{}, s)
	assert.Equal(t, BackendDir, BackendOf(s))

	_, err = OpenBackend(ctx, Options{Backend: "redis"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}
