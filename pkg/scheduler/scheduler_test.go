package scheduler

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/oneloop/pkg/config"
	"github.com/cuemby/oneloop/pkg/cubature"
	"github.com/cuemby/oneloop/pkg/storage"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
	"github.com/cuemby/oneloop/pkg/wire"
	"github.com/cuemby/oneloop/pkg/worker"
)

func writePkTable(t *testing.T, path string, amp float64) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < 12; i++ {
		k := math.Pow(10, -3+3*float64(i)/11)
		fmt.Fprintf(&b, "%g %g\n", k, amp*math.Pow(k, -1.5))
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}

func pipelineConfig(t *testing.T, dataDir string, paths []string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		DataDir:       dataDir,
		LinearPkPaths: paths,
		Models:        []config.Model{{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046}},
		Redshifts:     config.Range{Explicit: []float64{1.0}},
		Wavenumbers:   config.Range{Explicit: []float64{0.05}},
		UVCutoffs:     config.Range{Explicit: []float64{0.3}},
		IRCutoffs:     config.Range{Explicit: []float64{0.001}},
		IRResumScales: config.Range{Explicit: []float64{0.2}},
		Tolerances: config.Tolerances{
			// Wide open so every cubature call converges on its first
			// grid comparison; the test is about the pipeline, not the
			// integrals.
			LoopAbsTol13: 1e30, LoopRelTol13: 1.0,
			LoopAbsTol22: 1e30, LoopRelTol22: 1.0,
			FilterSmoothingScale: 0.5,
		},
		Workers: 2,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func runPipeline(t *testing.T, store storage.Store, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()

	conns := make([]wire.Conn, cfg.Workers)
	done := make(chan error, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		masterConn, workerConn := wire.NewChannelPair()
		conns[i] = masterConn
		w := worker.NewWorker(worker.Config{ID: i + 1, Conn: workerConn, Routine: cubature.DefaultRoutine})
		go func() { done <- w.Run(ctx) }()
	}

	require.NoError(t, NewScheduler(store, conns).Run(ctx, cfg))
	for i := 0; i < cfg.Workers; i++ {
		require.NoError(t, <-done)
	}
}

// assembledID re-tokenizes the run's inputs (tokenization is
// idempotent) to reconstruct the key the assembly phase stored under.
func assembledID(t *testing.T, store storage.Store, cfg *config.Config) types.AssembledPkID {
	t.Helper()

	mc := cfg.Models[0]
	model, err := store.TokenizeModel(types.FRWModel{OmegaM: mc.OmegaM, OmegaLambda: mc.OmegaLambda, H: mc.H, TCMB: mc.TCMB, NEff: mc.NEff})
	require.NoError(t, err)

	initMeta, initSamples, err := loadLinearPk(cfg.LinearPkPaths[0])
	require.NoError(t, err)
	initMeta.Model = model
	pkInit, err := store.TokenizeLinearPk(initMeta, initSamples)
	require.NoError(t, err)

	finalMeta, finalSamples, err := loadLinearPk(cfg.LinearPkPaths[1])
	require.NoError(t, err)
	finalMeta.Model = model
	pkFinal, err := store.TokenizeLinearPk(finalMeta, finalSamples)
	require.NoError(t, err)

	growthTok, err := store.TokenizeGrowthParams(types.GrowthParams{AbsTol: cfg.Tolerances.GrowthAbsTol, RelTol: cfg.Tolerances.GrowthRelTol, ZInitial: 49.0})
	require.NoError(t, err)
	loopTok, err := store.TokenizeLoopParams(types.LoopParams{
		AbsTol13: cfg.Tolerances.LoopAbsTol13, RelTol13: cfg.Tolerances.LoopRelTol13,
		AbsTol22: cfg.Tolerances.LoopAbsTol22, RelTol22: cfg.Tolerances.LoopRelTol22,
	})
	require.NoError(t, err)

	k, err := store.TokenizeWavenumberGeneric(units.New[units.Energy](0.05))
	require.NoError(t, err)
	z, err := store.TokenizeRedshift(1.0)
	require.NoError(t, err)
	uv, err := store.TokenizeUVCutoff(units.New[units.Energy](0.3))
	require.NoError(t, err)
	ir, err := store.TokenizeIRCutoff(units.New[units.Energy](0.001))
	require.NoError(t, err)

	return types.AssembledPkID{
		Model: model, GrowthParams: growthTok, LoopParams: loopTok,
		PkInit: pkInit, PkFinal: &pkFinal, K: k, Z: z, UV: uv, IR: ir,
	}
}

// Two linear spectra end to end: the second path's table joins the
// growth work list with its own epochs, is growth-rescaled, and lands
// in the assembled row's identity; an identical second run finds no
// residual work.
func TestPipelineWithInitialAndFinalSpectrum(t *testing.T) {
	dir := t.TempDir()
	initPath := filepath.Join(dir, "pk_init.dat")
	finalPath := filepath.Join(dir, "pk_final.dat")
	writePkTable(t, initPath, 1e4)
	writePkTable(t, finalPath, 1.21e4)

	cfg := pipelineConfig(t, t.TempDir(), []string{initPath, finalPath})

	store, err := storage.NewBoltStore(cfg.DataDir)
	require.NoError(t, err)
	defer store.Close()

	runPipeline(t, store, cfg)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["filter_results"])
	// the configured z=1.0 plus the two rescale epochs (0 and z_init)
	assert.Equal(t, 3, stats["growth_samples"])
	// initial, final, and the derived no-wiggle spectrum
	assert.Equal(t, 3, stats["linear_pk_meta"])
	// 7 kernel labels, each against the raw and no-wiggle spectra
	assert.Equal(t, 14, stats["loop_kernel_results"])
	assert.Equal(t, 1, stats["matsubara_xy"])
	assert.Equal(t, 1, stats["assembled_pk"])
	assert.Equal(t, 1, stats["multipole_pk"])
	assert.Equal(t, 1, stats["counterterm_results"])

	entry, ok, err := store.FindAssembledPk(assembledID(t, store, cfg))
	require.NoError(t, err)
	require.True(t, ok, "assembled row is keyed by both spectrum tokens")
	require.NotNil(t, entry.ID.PkFinal)
	assert.Greater(t, entry.OneLoop[types.Mu0], 0.0)

	// second run over the same store: every work list is empty and no
	// table grows
	runPipeline(t, store, cfg)
	statsAfter, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, stats, statsAfter)
}

// rescaleFinal reads the two growth epochs back from the store and
// applies (D_init/D_final)^2 to the final table.
func TestRescaleFinalAppliesGrowthRatioFromStore(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	model, err := store.TokenizeModel(types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046})
	require.NoError(t, err)
	params := types.GrowthParams{ZInitial: 49.0}
	paramsTok, err := store.TokenizeGrowthParams(params)
	require.NoError(t, err)
	zInit, err := store.TokenizeRedshift(49.0)
	require.NoError(t, err)
	zFinal, err := store.TokenizeRedshift(0.0)
	require.NoError(t, err)

	require.NoError(t, store.StoreGrowthSample(types.GrowthSample{Model: model, GrowthParams: paramsTok, Z: zInit, G: 0.02}))
	require.NoError(t, store.StoreGrowthSample(types.GrowthSample{Model: model, GrowthParams: paramsTok, Z: zFinal, G: 0.8}))

	s := NewScheduler(store, nil)
	out, err := s.rescaleFinal(model, paramsTok, params, []types.LinearPkSample{{K: units.New[units.Energy](0.1), P: 100.0}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 100.0*(0.02/0.8)*(0.02/0.8), out[0].P, 1e-9)
}

// With only one epoch stored, rescaleFinal refuses rather than
// silently skipping the rescale.
func TestRescaleFinalMissingEpochIsConsistencyError(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	model, err := store.TokenizeModel(types.FRWModel{OmegaM: 0.3, OmegaLambda: 0.7, H: 0.7, TCMB: 2.725, NEff: 3.046})
	require.NoError(t, err)
	params := types.GrowthParams{ZInitial: 49.0}
	paramsTok, err := store.TokenizeGrowthParams(params)
	require.NoError(t, err)

	s := NewScheduler(store, nil)
	_, err = s.rescaleFinal(model, paramsTok, params, nil)
	require.Error(t, err)
}
