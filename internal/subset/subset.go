// Package subset enumerates the non-empty subsets of a catalog's dimensions
// and derives their canonical keys.
package subset

import (
	"slices"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/roach88/cubist/internal/catalog"
	"github.com/roach88/cubist/internal/cube"
)

// Subset is a non-empty set of dimensions. Bit i is set when the i-th
// dimension (declaration order) is a member.
type Subset struct {
	bits  bitset.BitSet
	names []string
	key   string
}

func newSubset(bits bitset.BitSet, declared []string) Subset {
	names := make([]string, 0, bits.Count())
	for i, ok := bits.NextSet(0); ok; i, ok = bits.NextSet(i + 1) {
		names = append(names, declared[i])
	}
	slices.Sort(names)
	return Subset{
		bits:  bits,
		names: names,
		key:   strings.Join(names, catalog.KeyDelimiter),
	}
}

// Names returns member names in canonical (sorted) order.
func (s Subset) Names() []string {
	return slices.Clone(s.names)
}

// Size returns the number of member dimensions.
func (s Subset) Size() int {
	return len(s.names)
}

// Key returns the canonical key, equal to Key(s.Names()).
func (s Subset) Key() string {
	return s.key
}

// Contains reports whether the dimension at declaration index i is a member.
func (s Subset) Contains(i int) bool {
	return i >= 0 && s.bits.Test(uint(i))
}

func (s Subset) String() string {
	return s.key
}

type options struct {
	maxSize       int
	maxDimensions int
}

// Option configures Enumerate.
type Option func(*options)

// WithMaxSize keeps only subsets with at most k dimensions. k <= 0 keeps all.
func WithMaxSize(k int) Option {
	return func(o *options) {
		o.maxSize = k
	}
}

// WithMaxDimensions sets the ceiling on the number of names. Defaults to
// catalog.DefaultMaxDimensions and is capped at catalog.HardMaxDimensions.
func WithMaxDimensions(n int) Option {
	return func(o *options) {
		o.maxDimensions = n
	}
}

// Enumerate returns every non-empty subset of names, ordered by bitmask
// 1 .. 2^n-1 where bit i stands for names[i].
func Enumerate(names []string, opts ...Option) ([]Subset, error) {
	o := options{maxDimensions: catalog.DefaultMaxDimensions}
	for _, opt := range opts {
		opt(&o)
	}
	o.maxDimensions = min(o.maxDimensions, catalog.HardMaxDimensions)

	n := len(names)
	if n == 0 {
		return nil, cube.NewConfigError("cannot enumerate subsets of zero dimensions")
	}
	if n > o.maxDimensions {
		return nil, cube.NewConfigError("%d dimensions exceed the ceiling of %d", n, o.maxDimensions)
	}
	if err := checkUnique(names); err != nil {
		return nil, err
	}

	declared := slices.Clone(names)
	total := uint64(1)<<uint(n) - 1
	subsets := make([]Subset, 0, total)
	for mask := uint64(1); mask <= total; mask++ {
		bits := bitset.From([]uint64{mask})
		if o.maxSize > 0 && int(bits.Count()) > o.maxSize {
			continue
		}
		subsets = append(subsets, newSubset(*bits, declared))
	}
	return subsets, nil
}

// All enumerates every subset of the catalog's dimensions.
func All(cat *catalog.Catalog, opts ...Option) ([]Subset, error) {
	opts = append([]Option{WithMaxDimensions(cat.MaxDimensions())}, opts...)
	return Enumerate(cat.Names(), opts...)
}

// FromNames builds the subset for caller-supplied names in any order.
// Unknown, duplicate or missing names are configuration errors.
func FromNames(cat *catalog.Catalog, names []string) (Subset, error) {
	if len(names) == 0 {
		return Subset{}, cube.NewConfigError("at least one dimension is required")
	}
	if err := checkUnique(names); err != nil {
		return Subset{}, err
	}

	var bits bitset.BitSet
	for _, name := range names {
		i, ok := cat.Index(name)
		if !ok {
			return Subset{}, cube.NewConfigError("unknown dimension %q", name)
		}
		bits.Set(uint(i))
	}
	return newSubset(bits, cat.Names()), nil
}

// Key derives the canonical key of a set of names: sorted lexicographically
// and joined with catalog.KeyDelimiter. Input order does not matter.
func Key(names []string) string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return strings.Join(sorted, catalog.KeyDelimiter)
}

// ParseKey splits a canonical key back into its names.
func ParseKey(key string) ([]string, error) {
	if key == "" {
		return nil, cube.NewConfigError("empty subset key")
	}
	names := strings.Split(key, catalog.KeyDelimiter)
	if slices.Contains(names, "") {
		return nil, cube.NewConfigError("malformed subset key %q", key)
	}
	if !slices.IsSorted(names) {
		return nil, cube.NewConfigError("subset key %q is not canonical", key)
	}
	if err := checkUnique(names); err != nil {
		return nil, err
	}
	return names, nil
}

func checkUnique(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return cube.NewConfigError("dimension %q listed more than once", name)
		}
		seen[name] = true
	}
	return nil
}
