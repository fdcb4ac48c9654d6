// Package catalog holds the Dimension Catalog: the ordered, validated set of
// dimensions and measures a materialization run is built from.
//
// A Catalog is immutable once New returns. Validation happens exactly once,
// at setup, and every failure is a cube configuration error.
package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/cubist/internal/cube"
)

const (
	// DefaultMaxDimensions bounds the number of dimensions unless overridden.
	// 16 dimensions yield 65535 artifacts.
	DefaultMaxDimensions = 16

	// HardMaxDimensions is the largest ceiling WithMaxDimensions accepts.
	HardMaxDimensions = 20

	// KeyDelimiter joins sorted dimension names into a subset key.
	KeyDelimiter = "__"
)

// Kind is the value type of a dimension.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
)

// Range is an inclusive integer domain.
type Range struct {
	Min int64
	Max int64
}

// Dimension is one groupable column.
type Dimension struct {
	Name string
	Kind Kind

	// Values is the closed domain of a string dimension. Empty means any
	// string is accepted.
	Values []string

	// Range is the closed domain of an int dimension. Nil means unbounded.
	Range *Range

	// Nullable marks dimensions where missing values are expected. Nulls in
	// a non-nullable dimension are still tolerated but reported.
	Nullable bool
}

// OpSum is the only supported measure operation.
const OpSum = "sum"

// Measure is a summed column.
type Measure struct {
	Name string
	Op   string
}

type options struct {
	maxDimensions int
}

// Option configures catalog validation.
type Option func(*options)

// WithMaxDimensions overrides the dimension ceiling. Values above
// HardMaxDimensions are rejected by New.
func WithMaxDimensions(n int) Option {
	return func(o *options) {
		o.maxDimensions = n
	}
}

// Catalog is the validated, ordered set of dimensions and measures.
type Catalog struct {
	dims     []Dimension
	index    map[string]int
	measures []Measure
	maxDims  int
}

// New validates dims and measures and returns the catalog.
func New(dims []Dimension, measures []Measure, opts ...Option) (*Catalog, error) {
	o := options{maxDimensions: DefaultMaxDimensions}
	for _, opt := range opts {
		opt(&o)
	}

	if o.maxDimensions < 1 || o.maxDimensions > HardMaxDimensions {
		return nil, cube.NewConfigError("dimension ceiling must be between 1 and %d, got %d", HardMaxDimensions, o.maxDimensions)
	}
	if len(dims) == 0 {
		return nil, cube.NewConfigError("catalog declares no dimensions")
	}
	if len(dims) > o.maxDimensions {
		e := cube.NewConfigError("catalog declares %d dimensions, ceiling is %d", len(dims), o.maxDimensions)
		e.Details = map[string]string{
			"artifacts": strconv.FormatUint(uint64(1)<<uint(len(dims))-1, 10),
		}
		return nil, e
	}

	c := &Catalog{
		dims:     make([]Dimension, 0, len(dims)),
		index:    make(map[string]int, len(dims)),
		measures: make([]Measure, 0, len(measures)),
		maxDims:  o.maxDimensions,
	}

	seen := make(map[string]string, len(dims)+len(measures))
	for _, d := range dims {
		if err := checkName("dimension", d.Name, seen); err != nil {
			return nil, err
		}
		if err := checkDomain(d); err != nil {
			return nil, err
		}
		d.Values = slices.Clone(d.Values)
		if d.Range != nil {
			r := *d.Range
			d.Range = &r
		}
		c.index[d.Name] = len(c.dims)
		c.dims = append(c.dims, d)
	}

	for _, m := range measures {
		if err := checkName("measure", m.Name, seen); err != nil {
			return nil, err
		}
		if m.Op == "" {
			m.Op = OpSum
		}
		if m.Op != OpSum {
			return nil, cube.NewConfigError("measure %q: unsupported op %q", m.Name, m.Op)
		}
		c.measures = append(c.measures, m)
	}

	return c, nil
}

// checkName validates a column name and records it in seen, keyed by its
// normalized form.
func checkName(what, name string, seen map[string]string) error {
	if name == "" {
		return cube.NewConfigError("%s name is empty", what)
	}
	norm := Normalize(name)
	if norm == "" {
		return cube.NewConfigError("%s name %q normalizes to nothing", what, name)
	}
	if prev, ok := seen[norm]; ok {
		if prev == name {
			return cube.NewConfigError("duplicate %s name %q", what, name)
		}
		return cube.NewConfigError("%s name %q collides with %q (both normalize to %q)", what, name, prev, norm)
	}
	if norm != name {
		return cube.NewConfigError("%s name %q is not normalized, use %q", what, name, norm)
	}
	if name == cube.CountColumn {
		return cube.NewConfigError("%s name %q is reserved", what, name)
	}
	if strings.Contains(name, KeyDelimiter) {
		return cube.NewConfigError("%s name %q contains the key delimiter %q", what, name, KeyDelimiter)
	}
	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return cube.NewConfigError("%s name %q must not begin or end with '_'", what, name)
	}
	seen[norm] = name
	return nil
}

func checkDomain(d Dimension) error {
	switch d.Kind {
	case KindString:
		if d.Range != nil {
			return cube.NewConfigError("dimension %q: range is only valid for int dimensions", d.Name)
		}
		dup := make(map[string]bool, len(d.Values))
		for _, v := range d.Values {
			if dup[v] {
				return cube.NewConfigError("dimension %q: duplicate value %q", d.Name, v)
			}
			dup[v] = true
		}
	case KindInt:
		if len(d.Values) > 0 {
			return cube.NewConfigError("dimension %q: values are only valid for string dimensions", d.Name)
		}
		if d.Range != nil && d.Range.Min > d.Range.Max {
			return cube.NewConfigError("dimension %q: min %d exceeds max %d", d.Name, d.Range.Min, d.Range.Max)
		}
	default:
		return cube.NewConfigError("dimension %q: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

// Len returns the number of dimensions.
func (c *Catalog) Len() int {
	return len(c.dims)
}

// MaxDimensions returns the ceiling the catalog was validated against.
func (c *Catalog) MaxDimensions() int {
	return c.maxDims
}

// Names returns dimension names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.dims))
	for i, d := range c.dims {
		names[i] = d.Name
	}
	return names
}

// Dimensions returns a copy of the dimensions in declaration order.
func (c *Catalog) Dimensions() []Dimension {
	return slices.Clone(c.dims)
}

// Dimension returns the named dimension.
func (c *Catalog) Dimension(name string) (Dimension, bool) {
	i, ok := c.index[name]
	if !ok {
		return Dimension{}, false
	}
	return c.dims[i], true
}

// Index returns the declaration position of the named dimension.
func (c *Catalog) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Measures returns a copy of the declared measures.
func (c *Catalog) Measures() []Measure {
	return slices.Clone(c.measures)
}

// MeasureNames returns measure names in declaration order.
func (c *Catalog) MeasureNames() []string {
	names := make([]string, len(c.measures))
	for i, m := range c.measures {
		names[i] = m.Name
	}
	return names
}

// IsMeasure reports whether name is a declared measure.
func (c *Catalog) IsMeasure(name string) bool {
	return slices.ContainsFunc(c.measures, func(m Measure) bool { return m.Name == name })
}

// Columns returns every input column: dimensions then measures.
func (c *Catalog) Columns() []string {
	return append(c.Names(), c.MeasureNames()...)
}

// Coerce parses a raw string into the named dimension's kind. Blank input
// is null. Domain membership is not checked, see InDomain.
func (c *Catalog) Coerce(name, raw string) (cube.Value, error) {
	d, ok := c.Dimension(name)
	if !ok {
		return nil, cube.NewConfigError("unknown dimension %q", name)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return cube.Null{}, nil
	}
	switch d.Kind {
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %q is not an integer", name, raw)
		}
		return cube.Int(n), nil
	default:
		return cube.NewString(raw), nil
	}
}

// CheckKind returns a configuration error if v is not null and does not
// match the named dimension's kind.
func (c *Catalog) CheckKind(name string, v cube.Value) error {
	d, ok := c.Dimension(name)
	if !ok {
		return cube.NewConfigError("unknown dimension %q", name)
	}
	switch v.(type) {
	case cube.String:
		if d.Kind != KindString {
			return cube.NewConfigError("dimension %q expects %s, got string", name, d.Kind)
		}
	case cube.Int:
		if d.Kind != KindInt {
			return cube.NewConfigError("dimension %q expects %s, got int", name, d.Kind)
		}
	}
	return nil
}

// InDomain reports whether a non-null v is an admissible value of the named
// dimension. Null is never in domain.
func (c *Catalog) InDomain(name string, v cube.Value) bool {
	d, ok := c.Dimension(name)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case cube.String:
		if d.Kind != KindString {
			return false
		}
		return len(d.Values) == 0 || slices.Contains(d.Values, string(val))
	case cube.Int:
		if d.Kind != KindInt {
			return false
		}
		return d.Range == nil || (int64(val) >= d.Range.Min && int64(val) <= d.Range.Max)
	default:
		return false
	}
}

// SubsetCount returns the number of artifacts a full run produces, 2^n - 1.
func (c *Catalog) SubsetCount() int {
	return 1<<len(c.dims) - 1
}
