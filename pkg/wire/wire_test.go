package wire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	original := Envelope{Tag: TagNewItem, Phase: PhaseGrowth, Worker: 3, Payload: []byte{1, 2, 3}}

	data, err := EncodeEnvelope(original)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestFilterDispatchRoundTrip(t *testing.T) {
	original := FilterDispatch{
		Item: types.FilterWorkItem{
			Model: token.New[token.ModelKind](11),
			K:     token.New[token.WavenumberGenericKind](22),
			Pk:    token.New[token.LinearPkKind](33),
		},
		Model:   types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046},
		Samples: []types.LinearPkSample{{K: units.New[units.Energy](0.01), P: 100.0}},
		Params:  types.FilterParams{SmoothingScale: 0.25},
		K:       0.01,
	}

	data, err := Encode(original)
	require.NoError(t, err)

	var decoded FilterDispatch
	require.NoError(t, Decode(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestChannelPairSendRecv(t *testing.T) {
	master, worker := NewChannelPair()
	defer master.Close()
	defer worker.Close()

	ctx := context.Background()
	env := Envelope{Tag: TagTaskBegin, Phase: PhaseFilter}

	require.NoError(t, master.Send(ctx, env))

	got, err := worker.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestConnRecvRespectsContextCancellation(t *testing.T) {
	_, worker := NewChannelPair()
	defer worker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := worker.Recv(ctx)
	require.Error(t, err)
}

func TestMasterConnCloseClosesChannel(t *testing.T) {
	master, worker := NewChannelPair()
	require.NoError(t, master.Close())

	_, err := worker.Recv(context.Background())
	require.Error(t, err)
}
