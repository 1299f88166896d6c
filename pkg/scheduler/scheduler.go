package scheduler

import (
	"context"
	"fmt"

	"github.com/cuemby/oneloop/pkg/config"
	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/cuemby/oneloop/pkg/log"
	"github.com/cuemby/oneloop/pkg/pkfilter"
	"github.com/cuemby/oneloop/pkg/storage"
	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
	"github.com/cuemby/oneloop/pkg/wire"
	"github.com/rs/zerolog"
)

// Scheduler is the master controller: it owns the persistent store
// exclusively and drives the seven-phase pipeline over a fixed pool
// of worker connections, numbered 1..len(conns).
type Scheduler struct {
	store   storage.Store
	conns   []wire.Conn
	logger  zerolog.Logger
	inbound chan inboundMsg
}

// NewScheduler constructs a master bound to store and conns.
func NewScheduler(store storage.Store, conns []wire.Conn) *Scheduler {
	return &Scheduler{
		store:   store,
		conns:   conns,
		logger:  log.WithComponent("scheduler"),
		inbound: make(chan inboundMsg, 4*len(conns)+1),
	}
}

// Terminate broadcasts TERMINATE to every worker.
func (s *Scheduler) Terminate(ctx context.Context) error {
	for i, c := range s.conns {
		if err := c.Send(ctx, wire.Envelope{Tag: wire.TagTerminate, Worker: i + 1}); err != nil {
			return errkind.Wrap(errkind.Protocol, err)
		}
	}
	return nil
}

// resolveTokens tokenizes each raw value in vals via tokenize,
// returning the resulting token slice alongside a token-ID -> raw
// value map the phase builders use to reattach physical values to a
// work item's tokens when building a dispatch payload.
func resolveTokens[T interface{ ID() uint32 }](vals []float64, tokenize func(float64) (T, error)) ([]T, map[uint32]float64, error) {
	toks := make([]T, 0, len(vals))
	byID := make(map[uint32]float64, len(vals))
	for _, v := range vals {
		t, err := tokenize(v)
		if err != nil {
			return nil, nil, err
		}
		toks = append(toks, t)
		byID[t.ID()] = v
	}
	return toks, byID, nil
}

// Run executes every phase of the pipeline, in order, for every model
// configured. It aborts on the first fatal phase error.
func (s *Scheduler) Run(ctx context.Context, cfg *config.Config) error {
	s.fanIn(ctx)

	if len(cfg.LinearPkPaths) == 0 {
		return errkind.Wrap(errkind.Configuration, errNoLinearPk)
	}
	initMeta, initSamples, err := loadLinearPk(cfg.LinearPkPaths[0])
	if err != nil {
		return errkind.Wrap(errkind.Configuration, err)
	}
	var finalMeta *types.LinearPkMeta
	var finalSamples []types.LinearPkSample
	if len(cfg.LinearPkPaths) > 1 {
		m, smp, err := loadLinearPk(cfg.LinearPkPaths[1])
		if err != nil {
			return errkind.Wrap(errkind.Configuration, err)
		}
		finalMeta, finalSamples = &m, smp
	}

	filterParams := types.FilterParams{SmoothingScale: cfg.Tolerances.FilterSmoothingScale}
	growthParams := types.GrowthParams{AbsTol: cfg.Tolerances.GrowthAbsTol, RelTol: cfg.Tolerances.GrowthRelTol, ZInitial: 49.0}
	loopParams := types.LoopParams{
		AbsTol13: cfg.Tolerances.LoopAbsTol13, RelTol13: cfg.Tolerances.LoopRelTol13,
		AbsTol22: cfg.Tolerances.LoopAbsTol22, RelTol22: cfg.Tolerances.LoopRelTol22,
	}
	matsubaraParams := types.MatsubaraXYParams{AbsTol: cfg.Tolerances.MatsubaraAbsTol, RelTol: cfg.Tolerances.MatsubaraRelTol}

	for _, mc := range cfg.Models {
		model := types.FRWModel{OmegaM: mc.OmegaM, OmegaLambda: mc.OmegaLambda, H: mc.H, TCMB: mc.TCMB, NEff: mc.NEff}
		if err := s.runModel(ctx, cfg, model, initMeta, initSamples, finalMeta, finalSamples,
			filterParams, growthParams, loopParams, matsubaraParams); err != nil {
			return err
		}
	}

	return s.Terminate(ctx)
}

// rescaleFinal multiplies the final spectrum's amplitudes by
// (D_init/D_final)^2, where D_init and D_final are the linear growth
// factors at the initial epoch and at the final spectrum's epoch
// (z = 0). The growth phase has already stored both samples by the
// time this runs; a missing one is a consistency failure.
func (s *Scheduler) rescaleFinal(modelTok token.Model, paramsTok token.GrowthParams, params types.GrowthParams, samples []types.LinearPkSample) ([]types.LinearPkSample, error) {
	zInitTok, err := s.store.TokenizeRedshift(params.ZInitial)
	if err != nil {
		return nil, err
	}
	zFinalTok, err := s.store.TokenizeRedshift(0)
	if err != nil {
		return nil, err
	}

	initGrowth, ok, err := s.store.FindGrowthSample(modelTok, paramsTok, zInitTok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errkind.Wrap(errkind.Consistency, fmt.Errorf("spectrum rescale: missing growth sample for model=%s growth-params=%s z=%s", modelTok, paramsTok, zInitTok))
	}
	finalGrowth, ok, err := s.store.FindGrowthSample(modelTok, paramsTok, zFinalTok)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errkind.Wrap(errkind.Consistency, fmt.Errorf("spectrum rescale: missing growth sample for model=%s growth-params=%s z=%s", modelTok, paramsTok, zFinalTok))
	}
	if finalGrowth.G == 0 {
		return nil, errkind.Wrap(errkind.Consistency, fmt.Errorf("spectrum rescale: growth factor at z=%s is zero", zFinalTok))
	}

	return pkfilter.Rescale(samples, initGrowth.G, finalGrowth.G), nil
}

var errNoLinearPk = errNoLinearPkType("no linear power spectrum configured")

type errNoLinearPkType string

func (e errNoLinearPkType) Error() string { return string(e) }

// runModel runs the full seven-phase pipeline for one FRW model.
func (s *Scheduler) runModel(
	ctx context.Context, cfg *config.Config, model types.FRWModel,
	initMeta types.LinearPkMeta, initSamples []types.LinearPkSample,
	finalMeta *types.LinearPkMeta, finalSamples []types.LinearPkSample,
	filterParams types.FilterParams, growthParams types.GrowthParams,
	loopParams types.LoopParams, matsubaraParams types.MatsubaraXYParams,
) error {
	logger := s.logger.With().Float64("omega_m", model.OmegaM).Logger()
	logger.Info().Msg("starting model pipeline")

	modelTok, err := s.store.TokenizeModel(model)
	if err != nil {
		return err
	}
	initMeta.Model = modelTok
	pkTok, err := s.store.TokenizeLinearPk(initMeta, initSamples)
	if err != nil {
		return err
	}
	var pkFinalTok *token.LinearPk
	if finalMeta != nil {
		finalMeta.Model = modelTok
		t, err := s.store.TokenizeLinearPk(*finalMeta, finalSamples)
		if err != nil {
			return err
		}
		pkFinalTok = &t
	}

	filterParamsTok, err := s.store.TokenizeFilterParams(filterParams)
	if err != nil {
		return err
	}
	growthParamsTok, err := s.store.TokenizeGrowthParams(growthParams)
	if err != nil {
		return err
	}
	loopParamsTok, err := s.store.TokenizeLoopParams(loopParams)
	if err != nil {
		return err
	}
	matsubaraParamsTok, err := s.store.TokenizeMatsubaraXYParams(matsubaraParams)
	if err != nil {
		return err
	}

	ks, kVal, err := resolveTokens(cfg.Wavenumbers.Values(), func(v float64) (token.Wavenumber, error) {
		return s.store.TokenizeWavenumberGeneric(units.New[units.Energy](v))
	})
	if err != nil {
		return err
	}
	uvs, uvVal, err := resolveTokens(cfg.UVCutoffs.Values(), func(v float64) (token.UVCutoff, error) {
		return s.store.TokenizeUVCutoff(units.New[units.Energy](v))
	})
	if err != nil {
		return err
	}
	irs, irVal, err := resolveTokens(cfg.IRCutoffs.Values(), func(v float64) (token.IRCutoff, error) {
		return s.store.TokenizeIRCutoff(units.New[units.Energy](v))
	})
	if err != nil {
		return err
	}
	irResums, irResumVal, err := resolveTokens(cfg.IRResumScales.Values(), func(v float64) (token.IRResum, error) {
		return s.store.TokenizeIRResum(units.New[units.Energy](v))
	})
	if err != nil {
		return err
	}
	zs, zVal, err := resolveTokens(cfg.Redshifts.Values(), s.store.TokenizeRedshift)
	if err != nil {
		return err
	}

	// A configured final spectrum needs growth factors at its own
	// epoch (z = 0) and at the initial epoch to form the rescale
	// factor, so both join the growth work list whether or not the
	// sample range includes them.
	growthZs := append([]token.Redshift(nil), zs...)
	if pkFinalTok != nil {
		for _, z := range []float64{0, growthParams.ZInitial} {
			t, err := s.store.TokenizeRedshift(z)
			if err != nil {
				return err
			}
			if _, ok := zVal[t.ID()]; !ok {
				growthZs = append(growthZs, t)
				zVal[t.ID()] = z
			}
		}
	}

	noWiggle, err := s.runFilterPhase(ctx, model, modelTok, pkTok, initSamples, filterParamsTok, filterParams, ks, kVal)
	if err != nil {
		return err
	}
	nwMeta := synthesizeNoWiggle(initMeta.Path, noWiggle)
	nwMeta.Model = modelTok
	nwTok, err := s.store.TokenizeLinearPk(nwMeta, noWiggle)
	if err != nil {
		return err
	}

	if err := s.runGrowthPhase(ctx, model, modelTok, growthParamsTok, growthParams, growthZs, zVal); err != nil {
		return err
	}

	var rescaledFinal []types.LinearPkSample
	if pkFinalTok != nil {
		rescaledFinal, err = s.rescaleFinal(modelTok, growthParamsTok, growthParams, finalSamples)
		if err != nil {
			return err
		}
	}
	if err := s.runMatsubaraPhase(ctx, model, modelTok, matsubaraParamsTok, matsubaraParams, pkTok, initSamples, irResums, irResumVal); err != nil {
		return err
	}
	if err := s.runLoopKernelPhase(ctx, model, modelTok, loopParamsTok, loopParams, ks, kVal, uvs, uvVal, irs, irVal, pkTok, initSamples, &nwTok, noWiggle); err != nil {
		return err
	}
	if err := s.runAssemblePhase(ctx, modelTok, growthParamsTok, loopParamsTok, pkTok, pkFinalTok, nwTok, rescaledFinal, ks, kVal, zs, uvs, irs); err != nil {
		return err
	}
	if err := s.runMultipolePhase(ctx, modelTok, growthParamsTok, loopParamsTok, pkTok, pkFinalTok, matsubaraParamsTok, ks, kVal, zs, uvs, irs, irResums); err != nil {
		return err
	}
	if err := s.runCountertermPhase(ctx, modelTok, growthParamsTok, ks, kVal, zs, uvs, irs, irResums); err != nil {
		return err
	}

	logger.Info().Msg("model pipeline complete")
	return nil
}
