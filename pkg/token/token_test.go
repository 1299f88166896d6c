package token

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenJSONRoundTrip(t *testing.T) {
	original := New[ModelKind](42)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Token[ModelKind]
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
	assert.Equal(t, uint32(42), decoded.ID())
}

func TestTokenBinaryRoundTrip(t *testing.T) {
	original := New[RedshiftKind](7)

	data, err := original.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 4)

	var decoded Token[RedshiftKind]
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, original, decoded)
}

func TestZeroTokenIsInvalid(t *testing.T) {
	assert.False(t, Zero[ModelKind]().Valid())
	assert.True(t, New[ModelKind](1).Valid())
}
