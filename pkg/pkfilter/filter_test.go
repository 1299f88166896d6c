package pkfilter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
)

func logLinearSamples(n int, kMin, kMax, amp, slope float64) []types.LinearPkSample {
	out := make([]types.LinearPkSample, n)
	logMin, logMax := math.Log(kMin), math.Log(kMax)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		k := math.Exp(logMin + t*(logMax-logMin))
		out[i] = types.LinearPkSample{
			K: units.New[units.Energy](k),
			P: amp * math.Pow(k, slope),
		}
	}
	return out
}

func TestInterpLogLogExactOnLogLinearTable(t *testing.T) {
	samples := logLinearSamples(64, 1e-3, 1.0, 2.0, -1.5)

	for _, k := range []float64{2e-3, 1e-2, 0.37, 0.9} {
		got := interpLogLog(samples, k)
		want := 2.0 * math.Pow(k, -1.5)
		assert.InDelta(t, want, got, want*1e-3, "k=%v", k)
	}
}

func TestInterpLogLogClampsOutsideTable(t *testing.T) {
	samples := logLinearSamples(16, 1e-3, 1.0, 2.0, -1.5)

	assert.Equal(t, samples[0].P, interpLogLog(samples, 1e-4))
	assert.Equal(t, samples[len(samples)-1].P, interpLogLog(samples, 10.0))
}

func TestFilterSuppressesOscillation(t *testing.T) {
	model := types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046}
	broadband := func(k float64) float64 { return 2.0 * math.Pow(k, -1.5) }
	samples := make([]types.LinearPkSample, 0, 256)
	for _, s := range logLinearSamples(256, 1e-3, 1.0, 2.0, -1.5) {
		k := s.K.Value()
		wiggle := 1.0 + 0.05*math.Sin(2*math.Pi*k/0.06)
		samples = append(samples, types.LinearPkSample{K: s.K, P: s.P * wiggle})
	}
	params := types.FilterParams{SmoothingScale: 0.25}

	// kPeak sits on a crest of the oscillation, kTrough on the next
	// trough. Relative to the broadband, the input swings by the full
	// wiggle amplitude between them; the filtered output must swing by
	// far less.
	kPeak, kTrough := 0.135, 0.165
	wPeak, nwPeak, err := Filter(model, samples, params, kPeak)
	require.NoError(t, err)
	wTrough, nwTrough, err := Filter(model, samples, params, kTrough)
	require.NoError(t, err)

	inputSwing := math.Abs((wPeak/broadband(kPeak))/(wTrough/broadband(kTrough)) - 1)
	filteredSwing := math.Abs((nwPeak/broadband(kPeak))/(nwTrough/broadband(kTrough)) - 1)

	require.Greater(t, inputSwing, 0.08)
	assert.Less(t, filteredSwing, 0.3*inputSwing)
}

func TestFilterEmptyTableReturnsInputUnchanged(t *testing.T) {
	model := types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046}
	wiggle, noWiggle, err := Filter(model, nil, types.FilterParams{}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, wiggle)
	assert.Equal(t, 0.0, noWiggle)
}

func TestRescaleAppliesSquaredGrowthRatio(t *testing.T) {
	samples := []types.LinearPkSample{
		{K: units.New[units.Energy](0.01), P: 10.0},
		{K: units.New[units.Energy](0.1), P: 20.0},
	}

	out := Rescale(samples, 2.0, 1.0)
	require.Len(t, out, 2)
	assert.InDelta(t, 40.0, out[0].P, 1e-12)
	assert.InDelta(t, 80.0, out[1].P, 1e-12)
	assert.Equal(t, samples[0].K.Value(), out[0].K.Value())
	assert.Equal(t, samples[1].K.Value(), out[1].K.Value())

	// the input table is left untouched
	assert.Equal(t, 10.0, samples[0].P)
}

func TestFilterStaysPositiveOnSmoothInput(t *testing.T) {
	model := types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046}
	samples := logLinearSamples(256, 1e-3, 1.0, 2.0, -1.5)
	params := types.FilterParams{SmoothingScale: 0.5}

	// A wiggle-free input has nothing to smooth away: the no-wiggle
	// output stays strictly positive and within the input's order of
	// magnitude, so the loop-kernel integrands can interpolate it in
	// log space.
	for _, k := range []float64{0.01, 0.05, 0.12} {
		wiggle, noWiggle, err := Filter(model, samples, params, k)
		require.NoError(t, err)
		require.Greater(t, noWiggle, 0.0, "k=%v", k)
		assert.Less(t, noWiggle, 3.0*wiggle, "k=%v", k)
		assert.Greater(t, noWiggle, wiggle/3.0, "k=%v", k)
	}
}
