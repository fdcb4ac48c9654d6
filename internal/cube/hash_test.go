package cube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boroughArtifact() *Artifact {
	return &Artifact{
		Key:        "borough",
		Dimensions: []string{"borough"},
		Measures:   []string{"killed"},
		Rows: []Row{
			{Values: []Value{String("BRONX")}, Measures: []int64{1}, Count: 2},
			{Values: []Value{String("QUEENS")}, Measures: []int64{2}, Count: 1},
		},
	}
}

func TestCanonicalArtifact(t *testing.T) {
	data, err := CanonicalArtifact(boroughArtifact())
	require.NoError(t, err)

	expected := `{"dimensions":["borough"],"key":"borough","measures":["killed"],"rows":[` +
		`{"borough":"BRONX","count":2,"killed":1},` +
		`{"borough":"QUEENS","count":1,"killed":2}]}`
	assert.Equal(t, expected, string(data))
}

func TestCanonicalArtifactRejectsRaggedRows(t *testing.T) {
	a := boroughArtifact()
	a.Rows[0].Values = nil

	_, err := CanonicalArtifact(a)
	require.Error(t, err)
}

func TestArtifactHashIgnoresSnapshot(t *testing.T) {
	a := boroughArtifact()
	b := boroughArtifact()
	a.SnapshotHash = "one"
	b.SnapshotHash = "two"

	assert.Equal(t, MustArtifactHash(a), MustArtifactHash(b))
	assert.Len(t, MustArtifactHash(a), 64)
}

func TestArtifactHashChangesWithContent(t *testing.T) {
	a := boroughArtifact()
	b := boroughArtifact()
	b.Rows[1].Count = 5

	assert.NotEqual(t, MustArtifactHash(a), MustArtifactHash(b))
}

func TestSnapshotHashOrderIndependent(t *testing.T) {
	cols := []string{"borough", "killed", "year"}
	r1 := Record{"borough": String("BRONX"), "year": Int(2020), "killed": Int(1)}
	r2 := Record{"borough": String("QUEENS"), "year": Int(2021), "killed": Int(2)}

	h1, err := SnapshotHash([]Record{r1, r2}, cols)
	require.NoError(t, err)
	h2, err := SnapshotHash([]Record{r2, r1}, cols)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Duplicates are significant
	h3, err := SnapshotHash([]Record{r1, r1, r2}, cols)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestSnapshotHashNullEqualsMissing(t *testing.T) {
	cols := []string{"borough", "year"}
	withNull := Record{"borough": Null{}, "year": Int(2020)}
	missing := Record{"year": Int(2020)}

	h1, err := SnapshotHash([]Record{withNull}, cols)
	require.NoError(t, err)
	h2, err := SnapshotHash([]Record{missing}, cols)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestSnapshotHashIgnoresOtherColumns(t *testing.T) {
	cols := []string{"year"}
	h1, err := SnapshotHash([]Record{{"year": Int(2020), "note": String("x")}}, cols)
	require.NoError(t, err)
	h2, err := SnapshotHash([]Record{{"year": Int(2020)}}, cols)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
