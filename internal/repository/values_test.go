package repository

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestToInt(t *testing.T) {
	for _, v := range []interface{}{int(7), int32(7), int64(7), float64(7), json.Number("7"), " 7 "} {
		n, err := toInt(v)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, 7, n)
	}
	for _, v := range []interface{}{7.5, json.Number("7.5"), "seven", true, nil} {
		_, err := toInt(v)
		assert.Error(t, err, "%v", v)
	}
}

func TestToIntRejectsValuesWiderThanInt32(t *testing.T) {
	for _, v := range []interface{}{
		float64(1e19), float64(-1e19), float64(math.MaxInt32 + 1), math.NaN(),
		int64(math.MaxInt64), int64(math.MinInt32 - 1),
		json.Number("9223372036854775807"), "4294967296",
	} {
		_, err := toInt(v)
		assert.Error(t, err, "%v", v)
	}

	n, err := toInt(float64(math.MaxInt32))
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt32, n)
}

func TestReferenceFromDecodedJSON(t *testing.T) {
	var decoded interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"combination":1,"key":{"abbreviation":"CECS"}}`), &decoded))

	ref, ok := referenceFrom(decoded)
	require.True(t, ok)
	assert.Equal(t, 1, ref.Combination)
	assert.Equal(t, "CECS", ref.Key["abbreviation"])

	ref, ok = referenceFrom(&Reference{Combination: 2, Key: Values{"chair_name": "Dr. Ng"}})
	require.True(t, ok)
	assert.Equal(t, 2, ref.Combination)

	_, ok = referenceFrom("CECS")
	assert.False(t, ok)
	_, ok = referenceFrom((*Reference)(nil))
	assert.False(t, ok)
}

func TestToObjectID(t *testing.T) {
	id := primitive.NewObjectID()
	got, ok := toObjectID(id.Hex())
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = toObjectID("not-an-id")
	assert.False(t, ok)
	_, ok = toObjectID(42)
	assert.False(t, ok)
}
