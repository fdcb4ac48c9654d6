// Package lookup answers point queries from materialized artifacts.
//
// A lookup names a value for some dimensions. The named dimensions select
// the subset, and therefore the artifact; the values select rows within it.
// A lookup against a subset that was never materialized is an error, never
// an empty answer.
package lookup

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/metrics"
	"github.com/roach88/cubist/internal/store"
	"github.com/roach88/cubist/internal/subset"
)

// Service serves lookups for one catalog from one store.
type Service struct {
	cat    *catalog.Catalog
	store  store.Store
	cache  *Cache
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache shares a cache. By default each Service has its own.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a lookup service.
func NewService(cat *catalog.Catalog, st store.Store, opts ...Option) *Service {
	s := &Service{cat: cat, store: st}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "lookup")
	return s
}

// Catalog returns the catalog lookups are validated against.
func (s *Service) Catalog() *catalog.Catalog {
	return s.cat
}

// Cache returns the service's cache, for registration with a Runner.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Result is a lookup answer with its column layout.
type Result struct {
	Key        string
	Dimensions []string
	Measures   []string
	Rows       []cube.Row
}

// Objects flattens rows into column maps including the count column.
func (r *Result) Objects() []map[string]any {
	a := &cube.Artifact{Dimensions: r.Dimensions, Measures: r.Measures}
	objs := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		objs[i] = a.RowObject(row)
	}
	return objs
}

// Lookup returns the rows of the artifact for the filtered dimensions whose
// values equal every filter. For a full tuple that is zero or one row.
//
// Empty filters, unknown dimensions, mistyped or null values are
// configuration errors. A subset with no artifact is a configuration error
// that also satisfies cube.IsNotFound.
func (s *Service) Lookup(ctx context.Context, filters map[string]cube.Value) ([]cube.Row, error) {
	res, err := s.Query(ctx, filters)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// LookupRaw is Lookup with string values, parsed per dimension kind.
func (s *Service) LookupRaw(ctx context.Context, raw map[string]string) ([]cube.Row, error) {
	res, err := s.QueryRaw(ctx, raw)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Query is Lookup returning the column layout with the rows.
func (s *Service) Query(ctx context.Context, filters map[string]cube.Value) (*Result, error) {
	res, err := s.query(ctx, filters)
	metrics.LookupRequestsTotal.WithLabelValues(lookupStatus(err)).Inc()
	return res, err
}

// QueryRaw is Query with string values.
func (s *Service) QueryRaw(ctx context.Context, raw map[string]string) (*Result, error) {
	filters, err := s.Parse(raw)
	if err != nil {
		metrics.LookupRequestsTotal.WithLabelValues(metrics.StatusInvalid).Inc()
		return nil, err
	}
	return s.Query(ctx, filters)
}

// Parse coerces string filter values to dimension values.
func (s *Service) Parse(raw map[string]string) (map[string]cube.Value, error) {
	filters := make(map[string]cube.Value, len(raw))
	for name, text := range raw {
		v, err := s.cat.Coerce(name, text)
		if err != nil {
			if cube.IsConfigError(err) {
				return nil, err
			}
			return nil, &cube.Error{Code: cube.ErrCodeConfiguration, Message: "invalid lookup value", Err: err}
		}
		filters[name] = v
	}
	return filters, nil
}

func (s *Service) query(ctx context.Context, filters map[string]cube.Value) (*Result, error) {
	if len(filters) == 0 {
		return nil, cube.NewConfigError("lookup requires at least one dimension")
	}

	names := make([]string, 0, len(filters))
	for name, v := range filters {
		if err := s.cat.CheckKind(name, v); err != nil {
			return nil, err
		}
		if cube.IsNull(v) {
			return nil, cube.NewConfigError("dimension %q: null is not a lookup value", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	sub, err := subset.FromNames(s.cat, names)
	if err != nil {
		return nil, err
	}

	a, err := s.Artifact(ctx, sub.Key())
	if err != nil {
		return nil, err
	}

	res := &Result{
		Key:        a.Key,
		Dimensions: a.Dimensions,
		Measures:   a.Measures,
		Rows:       make([]cube.Row, 0, 1),
	}
	for _, row := range a.Rows {
		if matches(a.Dimensions, row, filters) {
			res.Rows = append(res.Rows, row)
		}
	}
	s.logger.Debug("lookup", "key", a.Key, "rows", len(res.Rows))
	return res, nil
}

// Artifact returns the stored artifact for a canonical key through the
// cache. A missing artifact is a configuration error wrapping NOT_FOUND.
func (s *Service) Artifact(ctx context.Context, key string) (*cube.Artifact, error) {
	a, err := s.cache.Get(ctx, key, s.store.Get)
	if cube.IsNotFound(err) {
		return nil, &cube.Error{
			Code:    cube.ErrCodeConfiguration,
			Message: "subset has not been materialized",
			Key:     key,
			Err:     err,
		}
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Invalidate drops cached artifacts.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

func matches(dims []string, row cube.Row, filters map[string]cube.Value) bool {
	for i, name := range dims {
		if !cube.Equal(row.Values[i], filters[name]) {
			return false
		}
	}
	return true
}

func lookupStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusOK
	case cube.IsNotFound(err):
		return metrics.StatusNotFound
	case cube.IsConfigError(err):
		return metrics.StatusInvalid
	default:
		return metrics.StatusError
	}
}
