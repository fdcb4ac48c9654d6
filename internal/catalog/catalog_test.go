package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cubist/internal/cube"
)

func boroughYear() []Dimension {
	return []Dimension{
		{Name: "borough", Kind: KindString, Values: []string{"BRONX", "QUEENS"}},
		{Name: "year", Kind: KindInt, Range: &Range{Min: 2012, Max: 2024}},
	}
}

func TestNewValid(t *testing.T) {
	c, err := New(boroughYear(), []Measure{{Name: "killed"}})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"borough", "year"}, c.Names())
	assert.Equal(t, []string{"killed"}, c.MeasureNames())
	assert.Equal(t, []string{"borough", "year", "killed"}, c.Columns())
	assert.Equal(t, OpSum, c.Measures()[0].Op)
	assert.Equal(t, 3, c.SubsetCount())
	assert.Equal(t, DefaultMaxDimensions, c.MaxDimensions())

	d, ok := c.Dimension("year")
	require.True(t, ok)
	assert.Equal(t, KindInt, d.Kind)

	idx, ok := c.Index("year")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = c.Dimension("month")
	assert.False(t, ok)
	assert.True(t, c.IsMeasure("killed"))
	assert.False(t, c.IsMeasure("borough"))
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name     string
		dims     []Dimension
		measures []Measure
		opts     []Option
		contains string
	}{
		{
			name:     "no dimensions",
			contains: "no dimensions",
		},
		{
			name: "duplicate",
			dims: []Dimension{
				{Name: "borough", Kind: KindString},
				{Name: "borough", Kind: KindString},
			},
			contains: "duplicate dimension",
		},
		{
			name: "normalization collision",
			dims: []Dimension{
				{Name: "crash_hour", Kind: KindInt},
				{Name: "Crash Hour", Kind: KindInt},
			},
			contains: "collides",
		},
		{
			name:     "not normalized",
			dims:     []Dimension{{Name: "Borough", Kind: KindString}},
			contains: "not normalized",
		},
		{
			name:     "contains delimiter",
			dims:     []Dimension{{Name: "crash__hour", Kind: KindInt}},
			contains: "key delimiter",
		},
		{
			name:     "leading underscore",
			dims:     []Dimension{{Name: "_hour", Kind: KindInt}},
			contains: "begin or end",
		},
		{
			name:     "reserved count",
			dims:     []Dimension{{Name: "count", Kind: KindInt}},
			contains: "reserved",
		},
		{
			name:     "measure collides with dimension",
			dims:     []Dimension{{Name: "hour", Kind: KindInt}},
			measures: []Measure{{Name: "hour"}},
			contains: "duplicate measure",
		},
		{
			name:     "unsupported op",
			dims:     []Dimension{{Name: "hour", Kind: KindInt}},
			measures: []Measure{{Name: "killed", Op: "avg"}},
			contains: "unsupported op",
		},
		{
			name:     "unknown kind",
			dims:     []Dimension{{Name: "hour", Kind: "float"}},
			contains: "unknown kind",
		},
		{
			name:     "inverted range",
			dims:     []Dimension{{Name: "hour", Kind: KindInt, Range: &Range{Min: 23, Max: 0}}},
			contains: "exceeds max",
		},
		{
			name:     "duplicate value",
			dims:     []Dimension{{Name: "borough", Kind: KindString, Values: []string{"BRONX", "BRONX"}}},
			contains: "duplicate value",
		},
		{
			name:     "above ceiling",
			dims:     boroughYear(),
			opts:     []Option{WithMaxDimensions(1)},
			contains: "ceiling is 1",
		},
		{
			name:     "ceiling above hard max",
			dims:     boroughYear(),
			opts:     []Option{WithMaxDimensions(HardMaxDimensions + 1)},
			contains: "dimension ceiling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dims, tt.measures, tt.opts...)
			require.Error(t, err)
			assert.True(t, cube.IsConfigError(err), "want configuration error, got %v", err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestNewCeilingDetails(t *testing.T) {
	_, err := New(boroughYear(), nil, WithMaxDimensions(1))
	require.Error(t, err)

	var e *cube.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "3", e.Details["artifacts"])
}

func TestNewSingleDimension(t *testing.T) {
	c, err := New([]Dimension{{Name: "borough", Kind: KindString}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.SubsetCount())
}

func TestNewCopiesInput(t *testing.T) {
	dims := boroughYear()
	c, err := New(dims, nil)
	require.NoError(t, err)

	dims[0].Values[0] = "MUTATED"
	dims[1].Range.Max = 0

	assert.True(t, c.InDomain("borough", cube.String("BRONX")))
	assert.True(t, c.InDomain("year", cube.Int(2020)))
}

func TestCoerce(t *testing.T) {
	c, err := New(boroughYear(), nil)
	require.NoError(t, err)

	v, err := c.Coerce("year", " 2020 ")
	require.NoError(t, err)
	assert.Equal(t, cube.Int(2020), v)

	v, err = c.Coerce("borough", "BRONX")
	require.NoError(t, err)
	assert.Equal(t, cube.String("BRONX"), v)

	v, err = c.Coerce("borough", "cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, cube.String("caf\u00e9"), v, "strings are coerced to NFC")

	v, err = c.Coerce("borough", "  ")
	require.NoError(t, err)
	assert.Equal(t, cube.Null{}, v)

	_, err = c.Coerce("year", "twenty")
	require.Error(t, err)
	assert.False(t, cube.IsConfigError(err))

	_, err = c.Coerce("month", "1")
	require.Error(t, err)
	assert.True(t, cube.IsConfigError(err))
}

func TestInDomain(t *testing.T) {
	c, err := New(boroughYear(), nil)
	require.NoError(t, err)

	tests := []struct {
		dim  string
		v    cube.Value
		want bool
	}{
		{"borough", cube.String("BRONX"), true},
		{"borough", cube.String("STATEN ISLAND"), false},
		{"borough", cube.Int(1), false},
		{"borough", cube.Null{}, false},
		{"year", cube.Int(2012), true},
		{"year", cube.Int(2024), true},
		{"year", cube.Int(2025), false},
		{"year", cube.String("2020"), false},
		{"month", cube.Int(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.dim+"="+cube.Format(tt.v), func(t *testing.T) {
			assert.Equal(t, tt.want, c.InDomain(tt.dim, tt.v))
		})
	}
}

func TestInDomainUnrestricted(t *testing.T) {
	c, err := New([]Dimension{
		{Name: "street", Kind: KindString},
		{Name: "hour", Kind: KindInt},
	}, nil)
	require.NoError(t, err)

	assert.True(t, c.InDomain("street", cube.String("BROADWAY")))
	assert.True(t, c.InDomain("hour", cube.Int(-5)))
}

func TestCheckKind(t *testing.T) {
	c, err := New(boroughYear(), nil)
	require.NoError(t, err)

	assert.NoError(t, c.CheckKind("year", cube.Int(2020)))
	assert.NoError(t, c.CheckKind("year", cube.Null{}))
	assert.True(t, cube.IsConfigError(c.CheckKind("year", cube.String("2020"))))
	assert.True(t, cube.IsConfigError(c.CheckKind("borough", cube.Int(1))))
	assert.True(t, cube.IsConfigError(c.CheckKind("month", cube.Int(1))))
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"borough":                  "borough",
		"BOROUGH":                  "borough",
		"Number Of Persons-Killed": "number_of_persons_killed",
		"crash.hour":               "crash_hour",
		"zip (code)":               "zip_code",
		"caf\u00e9":                "caf",
		"cafe\u0301":               "caf",
		"":                         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}
