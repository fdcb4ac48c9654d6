package lookup

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cubist/internal/aggregate"
	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/store"
	"github.com/roach88/cubist/internal/subset"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Dimension{
		{Name: "borough", Kind: catalog.KindString},
		{Name: "year", Kind: catalog.KindInt},
		{Name: "hour", Kind: catalog.KindInt},
	}, []catalog.Measure{{Name: "killed"}})
	require.NoError(t, err)
	return cat
}

func testRecords() []cube.Record {
	return []cube.Record{
		{"borough": cube.String("BRONX"), "year": cube.Int(2020), "hour": cube.Int(8), "killed": cube.Int(1)},
		{"borough": cube.String("BRONX"), "year": cube.Int(2020), "hour": cube.Int(9), "killed": cube.Int(0)},
		{"borough": cube.String("QUEENS"), "year": cube.Int(2021), "hour": cube.Int(8), "killed": cube.Int(2)},
	}
}

// newTestService materializes the given subsets and returns a service over them.
func newTestService(t *testing.T, keys ...[]string) (*Service, *store.SQLiteStore) {
	t.Helper()
	cat := testCatalog(t)
	st, err := store.Open(filepath.Join(t.TempDir(), "cubist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, names := range keys {
		sub, err := subset.FromNames(cat, names)
		require.NoError(t, err)
		a, _ := aggregate.Aggregate(sub, cat, testRecords())
		require.NoError(t, st.Put(context.Background(), a))
	}
	return NewService(cat, st), st
}

func TestLookup_FullTuple(t *testing.T) {
	svc, _ := newTestService(t, []string{"borough", "year"})

	rows, err := svc.Lookup(context.Background(), map[string]cube.Value{
		"borough": cube.String("BRONX"),
		"year":    cube.Int(2020),
	})
	require.NoError(t, err)
	assert.Equal(t, []cube.Row{
		{Values: []cube.Value{cube.String("BRONX"), cube.Int(2020)}, Measures: []int64{1}, Count: 2},
	}, rows)
}

func TestLookup_NoMatchingRow(t *testing.T) {
	svc, _ := newTestService(t, []string{"borough", "year"})

	rows, err := svc.Lookup(context.Background(), map[string]cube.Value{
		"borough": cube.String("QUEENS"),
		"year":    cube.Int(2020),
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLookup_MissingArtifact(t *testing.T) {
	svc, _ := newTestService(t, []string{"borough"})

	_, err := svc.Lookup(context.Background(), map[string]cube.Value{
		"year": cube.Int(2020),
		"hour": cube.Int(8),
	})
	require.Error(t, err)
	assert.True(t, cube.IsConfigError(err))
	assert.True(t, cube.IsNotFound(err))

	var e *cube.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "hour__year", e.Key)
}

func TestLookup_InvalidFilters(t *testing.T) {
	svc, _ := newTestService(t, []string{"borough"})

	tests := []struct {
		name    string
		filters map[string]cube.Value
	}{
		{"empty", map[string]cube.Value{}},
		{"unknown dimension", map[string]cube.Value{"precinct": cube.Int(40)}},
		{"measure is not a dimension", map[string]cube.Value{"killed": cube.Int(1)}},
		{"wrong kind", map[string]cube.Value{"year": cube.String("2020")}},
		{"null", map[string]cube.Value{"borough": cube.Null{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Lookup(context.Background(), tt.filters)
			require.Error(t, err)
			assert.True(t, cube.IsConfigError(err))
			assert.False(t, cube.IsNotFound(err))
		})
	}
}

func TestLookupRaw(t *testing.T) {
	svc, _ := newTestService(t, []string{"borough", "year"})
	ctx := context.Background()

	rows, err := svc.LookupRaw(ctx, map[string]string{"borough": "QUEENS", "year": " 2021 "})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []int64{2}, rows[0].Measures)
	assert.Equal(t, int64(1), rows[0].Count)

	_, err = svc.LookupRaw(ctx, map[string]string{"borough": "QUEENS", "year": "twenty"})
	assert.True(t, cube.IsConfigError(err))

	_, err = svc.LookupRaw(ctx, map[string]string{"borough": ""})
	assert.True(t, cube.IsConfigError(err))
}

func TestLookup_PartialTupleReturnsAllMatches(t *testing.T) {
	svc, _ := newTestService(t, []string{"hour"})

	rows, err := svc.Lookup(context.Background(), map[string]cube.Value{"hour": cube.Int(8)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []int64{3}, rows[0].Measures)
	assert.Equal(t, int64(2), rows[0].Count)
}

func TestLookup_CacheAndInvalidate(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, []string{"borough"})
	q := map[string]cube.Value{"borough": cube.String("BRONX")}

	rows, err := svc.Lookup(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, 1, svc.Cache().Len())

	// A newer artifact is not visible until the cache is invalidated.
	a := &cube.Artifact{
		Key:        "borough",
		Dimensions: []string{"borough"},
		Measures:   []string{"killed"},
		Rows: []cube.Row{
			{Values: []cube.Value{cube.String("BRONX")}, Measures: []int64{5}, Count: 7},
		},
	}
	a.ContentHash = cube.MustArtifactHash(a)
	require.NoError(t, st.Put(ctx, a))

	rows, err = svc.Lookup(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows[0].Count)

	svc.Invalidate()
	assert.Zero(t, svc.Cache().Len())

	rows, err = svc.Lookup(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rows[0].Count)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	var calls atomic.Int32

	load := func(ctx context.Context, key string) (*cube.Artifact, error) {
		if calls.Add(1) == 1 {
			return nil, cube.NewNotFoundError(key)
		}
		return &cube.Artifact{Key: key}, nil
	}

	_, err := c.Get(ctx, "year", load)
	assert.True(t, cube.IsNotFound(err))

	a, err := c.Get(ctx, "year", load)
	require.NoError(t, err)
	assert.Equal(t, "year", a.Key)

	_, err = c.Get(ctx, "year", load)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCache_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	release := make(chan struct{})
	var calls atomic.Int32

	load := func(ctx context.Context, key string) (*cube.Artifact, error) {
		calls.Add(1)
		<-release
		return &cube.Artifact{Key: key}, nil
	}

	var wg sync.WaitGroup
	results := make([]*cube.Artifact, 16)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := c.Get(ctx, "borough", load)
			assert.NoError(t, err)
			results[i] = a
		}()
	}
	close(release)
	wg.Wait()

	for _, a := range results {
		require.NotNil(t, a)
		assert.Equal(t, "borough", a.Key)
	}
	assert.LessOrEqual(t, calls.Load(), int32(16))
	assert.Equal(t, 1, c.Len())
}

func TestQuery_Objects(t *testing.T) {
	svc, _ := newTestService(t, []string{"borough", "year"})

	res, err := svc.QueryRaw(context.Background(), map[string]string{"year": "2020", "borough": "BRONX"})
	require.NoError(t, err)
	assert.Equal(t, "borough__year", res.Key)
	assert.Equal(t, []string{"borough", "year"}, res.Dimensions)
	assert.Equal(t, []string{"killed"}, res.Measures)
	assert.Equal(t, []map[string]any{{
		"borough": cube.String("BRONX"),
		"year":    cube.Int(2020),
		"killed":  int64(1),
		"count":   int64(2),
	}}, res.Objects())
}

func TestCache_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	c := NewCache()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	load := func(ctx context.Context, key string) (*cube.Artifact, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &cube.Artifact{Key: key}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "borough", load)
		first <- err
	}()
	<-started

	type result struct {
		a   *cube.Artifact
		err error
	}
	second := make(chan result, 1)
	go func() {
		a, err := c.Get(context.Background(), "borough", load)
		second <- result{a, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "borough", got.a.Key)
	assert.Equal(t, 1, c.Len())
}
