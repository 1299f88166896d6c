package units

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantityJSONRoundTrip(t *testing.T) {
	q := New[Energy](0.125)

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var decoded Quantity[Energy]
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, q.Value(), decoded.Value())
}

func TestQuantityBinaryRoundTrip(t *testing.T) {
	q := New[InverseEnergy](42.5)

	data, err := q.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 8)

	var decoded Quantity[InverseEnergy]
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, q.Value(), decoded.Value())
}

func TestRelativeDifference(t *testing.T) {
	a := New[Energy](1.0)
	b := New[Energy](1.01)
	assert.InDelta(t, 0.01, RelativeDifference(a, b), 1e-9)
}

func TestMulEnergyInverseEnergyIsDimensionless(t *testing.T) {
	k := New[Energy](2.0)
	r := New[InverseEnergy](0.5)
	got := MulEnergyInverseEnergy(k, r)
	assert.Equal(t, 1.0, got.Value())
}
