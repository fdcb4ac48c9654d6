package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cubist/internal/cube"
)

func TestLoadReferenceCatalog(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "collisions.cue"))
	require.NoError(t, err)

	assert.Equal(t, []string{"borough", "year", "month", "hour"}, c.Names())
	assert.Equal(t, []string{
		"number_of_persons_killed",
		"number_of_persons_injured",
		"number_of_casualty",
	}, c.MeasureNames())
	assert.Equal(t, 15, c.SubsetCount())

	borough, ok := c.Dimension("borough")
	require.True(t, ok)
	assert.Equal(t, KindString, borough.Kind)
	assert.True(t, borough.Nullable)
	assert.Len(t, borough.Values, 5)

	year, ok := c.Dimension("year")
	require.True(t, ok)
	assert.Equal(t, KindInt, year.Kind)
	require.NotNil(t, year.Range)
	assert.Equal(t, Range{Min: 2012, Max: 2024}, *year.Range)
	assert.False(t, year.Nullable)
}

func TestLoadFieldOrderWithoutOrder(t *testing.T) {
	c, err := LoadBytes("inline.cue", []byte(`
		catalog: {
			dimensions: {
				year: {kind: "int"}
				borough: {}
			}
		}
	`))
	require.NoError(t, err)

	assert.Equal(t, []string{"year", "borough"}, c.Names())
	d, _ := c.Dimension("borough")
	assert.Equal(t, KindString, d.Kind)
	assert.Empty(t, c.MeasureNames())
}

func TestLoadOptionsPassThrough(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "collisions.cue"), WithMaxDimensions(3))
	require.Error(t, err)
	assert.True(t, cube.IsConfigError(err))
	assert.Contains(t, err.Error(), "ceiling is 3")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains string
	}{
		{
			name:     "syntax",
			src:      `catalog: {`,
			contains: "invalid catalog",
		},
		{
			name:     "missing catalog",
			src:      `other: 1`,
			contains: "catalog is required",
		},
		{
			name:     "missing dimensions",
			src:      `catalog: measures: killed: op: "sum"`,
			contains: "dimensions are required",
		},
		{
			name:     "order mismatch",
			src:      `catalog: {order: ["year"], dimensions: {year: {kind: "int"}, hour: {kind: "int"}}}`,
			contains: "order lists 1 dimensions",
		},
		{
			name:     "order unknown",
			src:      `catalog: {order: ["month"], dimensions: {year: {kind: "int"}}}`,
			contains: `"month" is not a declared dimension`,
		},
		{
			name:     "half range",
			src:      `catalog: dimensions: year: {kind: "int", min: 2012}`,
			contains: "min and max must be declared together",
		},
		{
			name:     "normalization collision",
			src:      `catalog: dimensions: {borough: {}, "BOROUGH": {}}`,
			contains: "collides",
		},
		{
			name:     "non-concrete",
			src:      `catalog: dimensions: year: {kind: string}`,
			contains: "incomplete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes("inline.cue", []byte(tt.src))
			require.Error(t, err)
			assert.True(t, cube.IsConfigError(err), "want configuration error, got %v", err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadErrorPosition(t *testing.T) {
	_, err := LoadBytes("inline.cue", []byte("catalog: {\n\torder: [\"month\"]\n\tdimensions: year: kind: \"int\"\n}\n"))
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "order", le.Field)
	assert.True(t, le.Pos.IsValid())
	assert.Equal(t, 2, le.Pos.Line())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read catalog")
}
