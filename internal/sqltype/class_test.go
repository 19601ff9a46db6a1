package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	for _, c := range All() {
		parsed, err := Parse(c.String())
		require.NoError(t, err, c.String())
		assert.Equal(t, c, parsed)
	}
}

func TestParseVariants(t *testing.T) {
	cases := map[string]Class{
		"timestamp_with_timezone": TimestampWithTimezone,
		"long varchar":            LongVarchar,
		" bigint ":                BigInt,
		"Long-Varbinary":          LongVarbinary,
	}
	for input, want := range cases {
		got, err := Parse(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := Parse("geometry")
	assert.Error(t, err)
}

func TestAllCoversEveryClass(t *testing.T) {
	all := All()
	assert.Len(t, all, 26)
	assert.Equal(t, Other, all[0])
	assert.Equal(t, Varchar, all[len(all)-1])
}

func TestPredicates(t *testing.T) {
	assert.True(t, TimestampWithTimezone.IsTemporal())
	assert.False(t, Varchar.IsTemporal())
	assert.True(t, LongVarbinary.IsBinary())
	assert.True(t, Clob.IsCharacter())
	assert.True(t, Numeric.IsExactNumeric())
	assert.False(t, Double.IsExactNumeric())
	assert.True(t, TinyInt.IsInteger())
}

func TestTextMarshaling(t *testing.T) {
	text, err := TimeWithTimezone.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "TIME-WITH-TIMEZONE", string(text))

	var c Class
	require.NoError(t, c.UnmarshalText([]byte("decimal")))
	assert.Equal(t, Decimal, c)
}
