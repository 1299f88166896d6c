package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/oneloop/pkg/cubature"
	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
	"github.com/cuemby/oneloop/pkg/wire"
)

func noopRoutine(integrand cubature.Integrand, dim int, absTol, relTol float64) (value, errEst float64, regions, evaluations int, err error) {
	return 0, 0, 1, 1, nil
}

// TestRunStateMachineFullCycle drives a worker through exactly one
// TASK_BEGIN -> READY_FOR_WORK -> NEW_ITEM -> RESULT -> TASK_END ->
// TERMINATE cycle over an in-process wire.Conn pair.
func TestRunStateMachineFullCycle(t *testing.T) {
	master, workerConn := wire.NewChannelPair()
	w := NewWorker(Config{ID: 1, Conn: workerConn, Routine: noopRoutine})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	ctx := context.Background()

	require.NoError(t, master.Send(ctx, wire.Envelope{Tag: wire.TagTaskBegin, Phase: wire.PhaseFilter, Worker: 1}))

	env, err := master.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.TagReadyForWork, env.Tag)

	item := types.FilterWorkItem{
		Model: token.New[token.ModelKind](1),
		K:     token.New[token.WavenumberGenericKind](1),
		Pk:    token.New[token.LinearPkKind](1),
	}
	samples := []types.LinearPkSample{
		{K: units.New[units.Energy](0.01), P: 100.0},
		{K: units.New[units.Energy](0.1), P: 100.0},
		{K: units.New[units.Energy](1.0), P: 100.0},
	}
	payload, err := wire.Encode(wire.FilterDispatch{
		Item: item, Model: types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046},
		Samples: samples, K: 0.1,
	})
	require.NoError(t, err)
	require.NoError(t, master.Send(ctx, wire.Envelope{Tag: wire.TagNewItem, Phase: wire.PhaseFilter, Worker: 1, Payload: payload}))

	env, err = master.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.TagResult, env.Tag)
	var result types.FilterResult
	require.NoError(t, wire.Decode(env.Payload, &result))
	assert.Equal(t, item, result.Item)
	assert.InDelta(t, 100.0, result.Wiggle, 1e-9)

	env, err = master.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.TagReadyForWork, env.Tag, "worker loops back to READY_FOR_WORK after a RESULT")

	require.NoError(t, master.Send(ctx, wire.Envelope{Tag: wire.TagTaskEnd}))
	require.NoError(t, master.Send(ctx, wire.Envelope{Tag: wire.TagTerminate}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not terminate")
	}
}

func TestExecuteFilterOnConstantSpectrum(t *testing.T) {
	w := NewWorker(Config{ID: 1, Routine: noopRoutine})

	samples := []types.LinearPkSample{
		{K: units.New[units.Energy](0.001), P: 50.0},
		{K: units.New[units.Energy](0.5), P: 50.0},
		{K: units.New[units.Energy](1.0), P: 50.0},
	}
	item := types.FilterWorkItem{
		Model: token.New[token.ModelKind](3),
		K:     token.New[token.WavenumberGenericKind](7),
		Pk:    token.New[token.LinearPkKind](2),
	}
	payload, err := wire.Encode(wire.FilterDispatch{
		Item:    item,
		Model:   types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046},
		Samples: samples,
		K:       0.2,
	})
	require.NoError(t, err)

	out, err := w.executeFilter(payload)
	require.NoError(t, err)

	var result types.FilterResult
	require.NoError(t, wire.Decode(out, &result))
	assert.Equal(t, item, result.Item)
	assert.InDelta(t, 50.0, result.Wiggle, 1e-9)
}

func TestExecuteMultipoleMu0Only(t *testing.T) {
	w := NewWorker(Config{ID: 1, Routine: noopRoutine})

	entry := types.AssembledPkEntry{
		OneLoop: map[types.MuPower]float64{types.Mu0: 123.0},
	}
	item := types.MultipoleWorkItem{ID: types.MultipoleID{
		Model: token.New[token.ModelKind](1),
		K:     token.New[token.WavenumberGenericKind](1),
		Z:     token.New[token.RedshiftKind](1),
	}}
	payload, err := wire.Encode(wire.MultipoleDispatch{Item: item, Entry: entry, K: 0.1})
	require.NoError(t, err)

	out, err := w.executeMultipole(payload)
	require.NoError(t, err)

	var result types.MultipoleResult
	require.NoError(t, wire.Decode(out, &result))
	assert.Equal(t, item, result.Item)
	assert.InDelta(t, 123.0, result.Pk.NonResummed[0], 1e-6)
	assert.InDelta(t, 0.0, result.Pk.NonResummed[2], 1e-6)
	assert.InDelta(t, 0.0, result.Pk.NonResummed[4], 1e-6)
}

func failingRoutine(integrand cubature.Integrand, dim int, absTol, relTol float64) (value, errEst float64, regions, evaluations int, err error) {
	return 0.5, 1.0, 2, 10, errors.New("not converged")
}

// A kernel that exhausts its retry budget still produces a result
// payload, flagged as non-converged and carrying the relaxed
// tolerances the final attempt ran with.
func TestExecuteLoopKernelRecordsFailureFlag(t *testing.T) {
	w := NewWorker(Config{ID: 1, Routine: failingRoutine})

	item := types.LoopKernelWorkItem{ID: types.LoopKernelID{
		Model: token.New[token.ModelKind](1),
		K:     token.New[token.WavenumberGenericKind](1),
		Pk:    token.New[token.LinearPkKind](1),
		UV:    token.New[token.WavenumberUVKind](1),
		IR:    token.New[token.WavenumberIRKind](1),
		Kind:  types.KernelTwentyTwo,
		Label: types.LabelP22dd,
	}}
	samples := []types.LinearPkSample{
		{K: units.New[units.Energy](0.001), P: 100.0},
		{K: units.New[units.Energy](1.0), P: 100.0},
	}
	payload, err := wire.Encode(wire.LoopKernelDispatch{
		Item: item, Samples: samples,
		Params: types.LoopParams{AbsTol22: 1e-12, RelTol22: 1e-12},
		K:      0.1, UV: 0.3, IR: 0.001,
	})
	require.NoError(t, err)

	out, err := w.executeLoopKernel(payload)
	require.NoError(t, err)

	var result types.LoopKernelWorkResult
	require.NoError(t, wire.Decode(out, &result))
	assert.False(t, result.Result.Converged)
	assert.Equal(t, 0.5, result.Result.Value)
	assert.Equal(t, 1e-12, result.Result.FinalAbsTol)
	// Two failed attempts each relax rel_tol by 4x before the third
	// and final attempt runs.
	assert.InDelta(t, 1e-12*16, result.Result.FinalRelTol, 1e-24)
}

func TestAssembleEntryPrefersRescaledFinalSpectrum(t *testing.T) {
	final := []types.LinearPkSample{
		{K: units.New[units.Energy](0.01), P: 400.0},
		{K: units.New[units.Energy](1.0), P: 400.0},
	}
	d := wire.AssembleDispatch{
		Growth: types.GrowthSample{G: 2.0},
		Raw:    map[types.LoopKernelLabel]types.LoopKernelResult{types.LabelPtree: {Value: 100.0}},
		NW:     map[types.LoopKernelLabel]types.LoopKernelResult{},
		Final:  final,
		K:      0.1,
	}

	entry := assembleEntry(d)
	assert.InDelta(t, 4.0*400.0, entry.Tree[types.Mu0], 1e-9, "tree term reads the rescaled final table")

	d.Final = nil
	entry = assembleEntry(d)
	assert.InDelta(t, 4.0*100.0, entry.Tree[types.Mu0], 1e-9, "without a final table the tree kernel value is used")
}
