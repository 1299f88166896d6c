package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testModel() types.FRWModel {
	return types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046}
}

func TestTokenizeModelIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	first, err := s.TokenizeModel(testModel())
	require.NoError(t, err)

	second, err := s.TokenizeModel(testModel())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTokenizeModelWithinToleranceCollapses(t *testing.T) {
	s := openTestStore(t)

	first, err := s.TokenizeModel(testModel())
	require.NoError(t, err)

	nudged := testModel()
	nudged.OmegaM *= 1 + types.FRWModelTolerance/10

	second, err := s.TokenizeModel(nudged)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTokenizeModelDistinctOutsideTolerance(t *testing.T) {
	s := openTestStore(t)

	first, err := s.TokenizeModel(testModel())
	require.NoError(t, err)

	distinct := testModel()
	distinct.OmegaM = 0.5

	second, err := s.TokenizeModel(distinct)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBuildFilterWorkListReturnsOnlyResidual(t *testing.T) {
	s := openTestStore(t)

	model, err := s.TokenizeModel(testModel())
	require.NoError(t, err)

	k1, err := s.TokenizeWavenumberGeneric(units.New[units.Energy](0.01))
	require.NoError(t, err)
	k2, err := s.TokenizeWavenumberGeneric(units.New[units.Energy](0.02))
	require.NoError(t, err)

	pk, err := s.TokenizeLinearPk(types.LinearPkMeta{Model: model}, []types.LinearPkSample{
		{K: units.New[units.Energy](0.01), P: 100},
		{K: units.New[units.Energy](0.02), P: 90},
	})
	require.NoError(t, err)

	params, err := s.TokenizeFilterParams(types.FilterParams{SmoothingScale: 0.25})
	require.NoError(t, err)

	work, err := s.BuildFilterWorkList(model, []token.Wavenumber{k1, k2}, pk, params)
	require.NoError(t, err)
	require.Len(t, work, 2)

	require.NoError(t, s.StoreFilterResult(types.FilterResult{Item: work[0], Wiggle: 1, NoWiggle: 1}))

	residual, err := s.BuildFilterWorkList(model, []token.Wavenumber{k1, k2}, pk, params)
	require.NoError(t, err)
	require.Len(t, residual, 1)
	assert.Equal(t, work[1], residual[0])
}

func TestFindFilterResultRoundTrip(t *testing.T) {
	s := openTestStore(t)

	model, err := s.TokenizeModel(testModel())
	require.NoError(t, err)
	k, err := s.TokenizeWavenumberGeneric(units.New[units.Energy](0.05))
	require.NoError(t, err)
	pk, err := s.TokenizeLinearPk(types.LinearPkMeta{Model: model}, []types.LinearPkSample{
		{K: units.New[units.Energy](0.05), P: 50},
	})
	require.NoError(t, err)
	params, err := s.TokenizeFilterParams(types.FilterParams{SmoothingScale: 0.25})
	require.NoError(t, err)

	item := types.FilterWorkItem{Model: model, K: k, Pk: pk, Params: params}

	_, ok, err := s.FindFilterResult(item)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.StoreFilterResult(types.FilterResult{Item: item, Wiggle: 12.5, NoWiggle: 11.0}))

	got, ok, err := s.FindFilterResult(item)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.5, got.Wiggle)
	assert.Equal(t, 11.0, got.NoWiggle)
}

func TestStoreFilterResultRejectsOrphanRow(t *testing.T) {
	s := openTestStore(t)

	item := types.FilterWorkItem{
		Model:  token.New[token.ModelKind](999),
		K:      token.New[token.WavenumberGenericKind](999),
		Pk:     token.New[token.LinearPkKind](999),
		Params: token.New[token.FilterParamsKind](999),
	}
	err := s.StoreFilterResult(types.FilterResult{Item: item})
	require.Error(t, err)
}

func TestLinearPkSamplesRoundTripsQuantities(t *testing.T) {
	s := openTestStore(t)

	model, err := s.TokenizeModel(testModel())
	require.NoError(t, err)

	samples := []types.LinearPkSample{
		{K: units.New[units.Energy](0.001), P: 1000},
		{K: units.New[units.Energy](0.1), P: 1},
	}
	pk, err := s.TokenizeLinearPk(types.LinearPkMeta{Model: model}, samples)
	require.NoError(t, err)

	got, err := s.LinearPkSamples(pk)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.001, got[0].K.Value(), 1e-12)
	assert.InDelta(t, 0.1, got[1].K.Value(), 1e-12)
}

func TestStatsReportsRowCounts(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats["models"])

	_, err = s.TokenizeModel(testModel())
	require.NoError(t, err)

	stats, err = s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["models"])
}

func TestTokenizeWavenumberWithinToleranceCollapses(t *testing.T) {
	s := openTestStore(t)

	k1, err := s.TokenizeWavenumberGeneric(units.New[units.Energy](0.01))
	require.NoError(t, err)

	k2, err := s.TokenizeWavenumberGeneric(units.New[units.Energy](0.01 * (1 + 1e-11)))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := s.TokenizeWavenumberGeneric(units.New[units.Energy](0.02))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestTokenizeRedshiftAbsoluteNearZero(t *testing.T) {
	s := openTestStore(t)

	z0, err := s.TokenizeRedshift(0.0)
	require.NoError(t, err)
	zHalf, err := s.TokenizeRedshift(0.5)
	require.NoError(t, err)
	z1, err := s.TokenizeRedshift(1.0)
	require.NoError(t, err)
	assert.NotEqual(t, z0, zHalf)
	assert.NotEqual(t, zHalf, z1)

	nearZero, err := s.TokenizeRedshift(5e-6)
	require.NoError(t, err)
	assert.Equal(t, z0, nearZero)

	nearHalf, err := s.TokenizeRedshift(0.5 + 4e-6)
	require.NoError(t, err)
	assert.Equal(t, zHalf, nearHalf)
}

func TestTokenizeLinearPkIdentityIsContentNotPath(t *testing.T) {
	s := openTestStore(t)

	model, err := s.TokenizeModel(testModel())
	require.NoError(t, err)

	digest := [16]byte{0xde, 0xad, 0xbe, 0xef}
	samples := []types.LinearPkSample{{K: units.New[units.Energy](0.01), P: 100}}

	first, err := s.TokenizeLinearPk(types.LinearPkMeta{Model: model, Path: "/data/pk.dat", MD5: digest}, samples)
	require.NoError(t, err)

	second, err := s.TokenizeLinearPk(types.LinearPkMeta{Model: model, Path: "/data/copy/pk.dat", MD5: digest}, samples)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["linear_pk_data"])
}
