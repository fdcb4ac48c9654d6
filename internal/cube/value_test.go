package cube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"ints ascending", Int(2020), Int(2021), -1},
		{"ints numeric not lexical", Int(9), Int(10), -1},
		{"equal ints", Int(3), Int(3), 0},
		{"strings", String("BRONX"), String("QUEENS"), -1},
		{"null first", Null{}, Int(0), -1},
		{"int before string", Int(1), String("1"), -1},
		{"nil is null", nil, Null{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null{}))
	assert.False(t, IsNull(String("")))
	assert.False(t, IsNull(Int(0)))
}

func TestRecordGet(t *testing.T) {
	rec := Record{"year": Int(2020), "borough": nil}
	assert.Equal(t, Int(2020), rec.Get("year"))
	assert.Equal(t, Null{}, rec.Get("borough"))
	assert.Equal(t, Null{}, rec.Get("missing"))
}

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`"BRONX"`))
	require.NoError(t, err)
	assert.Equal(t, String("BRONX"), v)

	v, err = UnmarshalValue([]byte(`9007199254740993`))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), v)

	v, err = UnmarshalValue([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, Null{}, v)

	_, err = UnmarshalValue([]byte(`1.5`))
	assert.Error(t, err)

	_, err = UnmarshalValue([]byte(`true`))
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "BRONX", Format(String("BRONX")))
	assert.Equal(t, "2020", Format(Int(2020)))
	assert.Equal(t, "null", Format(Null{}))
}

func TestNormalizeStrings(t *testing.T) {
	const nfc, nfd = "caf\u00e9", "cafe\u0301"

	assert.Equal(t, String(nfc), NewString(nfd))
	assert.Equal(t, String(nfc), Normalize(String(nfd)))
	assert.Equal(t, Int(7), Normalize(Int(7)))
	assert.Equal(t, Null{}, Normalize(Null{}))

	v, err := FromAny(nfd)
	require.NoError(t, err)
	assert.Equal(t, String(nfc), v)

	v, err = FromAny(String(nfd))
	require.NoError(t, err)
	assert.Equal(t, String(nfc), v)
}
