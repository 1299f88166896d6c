package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/cuemby/oneloop/pkg/log"
	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
	"github.com/cuemby/oneloop/pkg/wire"
)

// kernelLabels enumerates the seven loop-kernel families this
// catalogue persists.
var kernelLabels = []types.LoopKernelLabel{
	types.LabelPtree,
	types.LabelP22dd, types.LabelP22dt, types.LabelP22tt,
	types.LabelP13dd, types.LabelP13dt, types.LabelP13tt,
}

func kindForLabel(l types.LoopKernelLabel) types.LoopKernelKind {
	switch l {
	case types.LabelP22dd, types.LabelP22dt, types.LabelP22tt:
		return types.KernelTwentyTwo
	default:
		return types.KernelThirteen
	}
}

func (s *Scheduler) runFilterPhase(
	ctx context.Context, model types.FRWModel, modelTok token.Model,
	pkTok token.LinearPk, samples []types.LinearPkSample,
	paramsTok token.FilterParams, params types.FilterParams,
	ks []token.Wavenumber, kVal map[uint32]float64,
) ([]types.LinearPkSample, error) {
	items, err := s.store.BuildFilterWorkList(modelTok, ks, pkTok, paramsTok)
	if err != nil {
		return nil, err
	}

	dispatches := make([]wire.FilterDispatch, len(items))
	for i, item := range items {
		dispatches[i] = wire.FilterDispatch{Item: item, Model: model, Samples: samples, Params: params, K: kVal[item.K.ID()]}
	}

	err = runPhase[wire.FilterDispatch, types.FilterResult](ctx, s, wire.PhaseFilter, dispatches, func(r types.FilterResult) error {
		return s.store.StoreFilterResult(r)
	})
	if err != nil {
		return nil, err
	}

	// Reassemble the full no-wiggle table (not just this run's residual
	// items) so the loop-kernel phase always sees every requested k,
	// including rows already committed by an earlier run.
	noWiggle := make([]types.LinearPkSample, 0, len(ks))
	for _, k := range ks {
		item := types.FilterWorkItem{Model: modelTok, K: k, Pk: pkTok, Params: paramsTok}
		r, ok, err := s.store.FindFilterResult(item)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errkind.Wrap(errkind.Consistency, fmt.Errorf("filter phase: missing result for k token %s", k))
		}
		noWiggle = append(noWiggle, types.LinearPkSample{K: units.New[units.Energy](kVal[k.ID()]), P: r.NoWiggle})
	}
	sort.Slice(noWiggle, func(i, j int) bool { return noWiggle[i].K.Value() < noWiggle[j].K.Value() })
	return noWiggle, nil
}

func (s *Scheduler) runGrowthPhase(
	ctx context.Context, model types.FRWModel, modelTok token.Model,
	paramsTok token.GrowthParams, params types.GrowthParams,
	zs []token.Redshift, zVal map[uint32]float64,
) error {
	items, err := s.store.BuildGrowthWorkList(modelTok, zs, paramsTok)
	if err != nil {
		return err
	}
	dispatches := make([]wire.GrowthDispatch, len(items))
	for i, item := range items {
		dispatches[i] = wire.GrowthDispatch{Item: item, Model: model, Params: params, Z: zVal[item.Z.ID()]}
	}
	return runPhase[wire.GrowthDispatch, types.GrowthResult](ctx, s, wire.PhaseGrowth, dispatches, func(r types.GrowthResult) error {
		return s.store.StoreGrowthSample(r.Sample)
	})
}

func (s *Scheduler) runMatsubaraPhase(
	ctx context.Context, model types.FRWModel, modelTok token.Model,
	paramsTok token.MatsubaraXYParams, params types.MatsubaraXYParams,
	pkTok token.LinearPk, samples []types.LinearPkSample,
	irResums []token.IRResum, irResumVal map[uint32]float64,
) error {
	items, err := s.store.BuildMatsubaraWorkList(modelTok, irResums, pkTok, paramsTok)
	if err != nil {
		return err
	}
	dispatches := make([]wire.MatsubaraDispatch, len(items))
	for i, item := range items {
		dispatches[i] = wire.MatsubaraDispatch{Item: item, Model: model, Samples: samples, Params: params, IRResum: irResumVal[item.IRResum.ID()]}
	}
	return runPhase[wire.MatsubaraDispatch, types.MatsubaraResult](ctx, s, wire.PhaseMatsubara, dispatches, func(r types.MatsubaraResult) error {
		return s.store.StoreMatsubaraXY(r.XY)
	})
}

func (s *Scheduler) runLoopKernelPhase(
	ctx context.Context, model types.FRWModel, modelTok token.Model,
	paramsTok token.LoopParams, params types.LoopParams,
	ks []token.Wavenumber, kVal map[uint32]float64,
	uvs []token.UVCutoff, uvVal map[uint32]float64,
	irs []token.IRCutoff, irVal map[uint32]float64,
	pkTok token.LinearPk, samples []types.LinearPkSample,
	nwTok *token.LinearPk, nwSamples []types.LinearPkSample,
) error {
	var dispatches []wire.LoopKernelDispatch
	add := func(pk token.LinearPk, pkSamples []types.LinearPkSample) error {
		for _, label := range kernelLabels {
			kind := kindForLabel(label)
			items, err := s.store.BuildLoopKernelWorkList(modelTok, paramsTok, ks, pk, uvs, irs, []types.LoopKernelKind{kind}, []types.LoopKernelLabel{label})
			if err != nil {
				return err
			}
			for _, item := range items {
				dispatches = append(dispatches, wire.LoopKernelDispatch{
					Item: item, Model: model, Samples: pkSamples, Params: params,
					K: kVal[item.ID.K.ID()], UV: uvVal[item.ID.UV.ID()], IR: irVal[item.ID.IR.ID()],
				})
			}
		}
		return nil
	}
	if err := add(pkTok, samples); err != nil {
		return err
	}
	if nwTok != nil {
		if err := add(*nwTok, nwSamples); err != nil {
			return err
		}
	}

	logger := log.WithPhase(wire.PhaseLoopKernel.String())
	return runPhase[wire.LoopKernelDispatch, types.LoopKernelWorkResult](ctx, s, wire.PhaseLoopKernel, dispatches, func(r types.LoopKernelWorkResult) error {
		if !r.Result.Converged {
			// Non-fatal: the failed attempt is still committed below
			// so a later run does not retry it, but the central
			// error-handler sink logs it at warn, naming the
			// integrand and the final (abs_tol, rel_tol) pair the
			// retry loop gave up at.
			nonConv := errkind.Wrap(errkind.NonConvergence, fmt.Errorf(
				"loop kernel %s/%s at k=%s did not converge: abs_tol=%g rel_tol=%g",
				r.Result.ID.Kind, r.Result.ID.Label, r.Result.ID.K, r.Result.FinalAbsTol, r.Result.FinalRelTol,
			))
			_ = log.RouteErr(logger, nonConv, "integration non-convergence")
		}
		return s.store.StoreLoopKernelResult(r.Result)
	})
}

func (s *Scheduler) runAssemblePhase(
	ctx context.Context, modelTok token.Model, growthParamsTok token.GrowthParams, loopParamsTok token.LoopParams,
	pkTok token.LinearPk, pkFinalTok *token.LinearPk, nwTok token.LinearPk, rescaledFinal []types.LinearPkSample,
	ks []token.Wavenumber, kVal map[uint32]float64, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff,
) error {
	items, err := s.store.BuildAssembleWorkList(modelTok, growthParamsTok, loopParamsTok, pkTok, pkFinalTok, ks, zs, uvs, irs)
	if err != nil {
		return err
	}

	lookupLabels := func(pk token.LinearPk, item types.AssembleWorkItem) (map[types.LoopKernelLabel]types.LoopKernelResult, error) {
		out := make(map[types.LoopKernelLabel]types.LoopKernelResult, len(kernelLabels))
		for _, label := range kernelLabels {
			id := types.LoopKernelID{Model: modelTok, Params: loopParamsTok, K: item.ID.K, Pk: pk, UV: item.ID.UV, IR: item.ID.IR, Kind: kindForLabel(label), Label: label}
			r, ok, err := s.store.FindLoopKernelResult(id)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errkind.Wrap(errkind.Consistency, fmt.Errorf("assemble phase: missing loop kernel %s at k=%s,uv=%s,ir=%s", label, item.ID.K, item.ID.UV, item.ID.IR))
			}
			out[label] = r
		}
		return out, nil
	}

	dispatches := make([]wire.AssembleDispatch, 0, len(items))
	for _, item := range items {
		growthSample, ok, err := s.store.FindGrowthSample(modelTok, growthParamsTok, item.ID.Z)
		if err != nil {
			return err
		}
		if !ok {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("assemble phase: missing growth sample for model=%s growth-params=%s z=%s", modelTok, growthParamsTok, item.ID.Z))
		}
		raw, err := lookupLabels(pkTok, item)
		if err != nil {
			return err
		}
		nw, err := lookupLabels(nwTok, item)
		if err != nil {
			return err
		}
		dispatches = append(dispatches, wire.AssembleDispatch{
			Item: item, Growth: growthSample, Raw: raw, NW: nw,
			Final: rescaledFinal, K: kVal[item.ID.K.ID()],
		})
	}

	return runPhase[wire.AssembleDispatch, types.AssembleResult](ctx, s, wire.PhaseAssemble, dispatches, func(r types.AssembleResult) error {
		return s.store.StoreAssembledPk(r.Entry)
	})
}

func (s *Scheduler) runMultipolePhase(
	ctx context.Context, modelTok token.Model, growthParamsTok token.GrowthParams, loopParamsTok token.LoopParams,
	pkTok token.LinearPk, pkFinalTok *token.LinearPk, matsubaraParamsTok token.MatsubaraXYParams,
	ks []token.Wavenumber, kVal map[uint32]float64, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff, irResums []token.IRResum,
) error {
	items, err := s.store.BuildMultipoleWorkList(modelTok, ks, zs, uvs, irs, irResums)
	if err != nil {
		return err
	}

	dispatches := make([]wire.MultipoleDispatch, 0, len(items))
	for _, item := range items {
		entryID := types.AssembledPkID{Model: modelTok, GrowthParams: growthParamsTok, LoopParams: loopParamsTok, PkInit: pkTok, PkFinal: pkFinalTok, K: item.ID.K, Z: item.ID.Z, UV: item.ID.UV, IR: item.ID.IR}
		entry, ok, err := s.store.FindAssembledPk(entryID)
		if err != nil {
			return err
		}
		if !ok {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("multipole phase: missing assembled P(k) at k=%s,z=%s", item.ID.K, item.ID.Z))
		}

		xyID := types.MatsubaraXYID{Model: modelTok, Params: matsubaraParamsTok, Pk: pkTok, IRResum: item.ID.IRResum}
		xy, hasXY, err := s.store.FindMatsubaraXY(xyID)
		if err != nil {
			return err
		}
		dispatches = append(dispatches, wire.MultipoleDispatch{Item: item, Entry: entry, XY: xy, HasXY: hasXY, K: kVal[item.ID.K.ID()]})
	}

	return runPhase[wire.MultipoleDispatch, types.MultipoleResult](ctx, s, wire.PhaseMultipole, dispatches, func(r types.MultipoleResult) error {
		return s.store.StoreMultipolePk(r.Pk)
	})
}

func (s *Scheduler) runCountertermPhase(
	ctx context.Context, modelTok token.Model, growthParamsTok token.GrowthParams,
	ks []token.Wavenumber, kVal map[uint32]float64, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff, irResums []token.IRResum,
) error {
	items, err := s.store.BuildCountertermWorkList(modelTok, growthParamsTok, ks, zs, uvs, irs)
	if err != nil {
		return err
	}
	var irResum token.IRResum
	if len(irResums) > 0 {
		irResum = irResums[0]
	}

	dispatches := make([]wire.CountertermDispatch, 0, len(items))
	for _, item := range items {
		growthSample, ok, err := s.store.FindGrowthSample(modelTok, growthParamsTok, item.ID.Z)
		if err != nil {
			return err
		}
		if !ok {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("counterterm phase: missing growth sample for model=%s growth-params=%s z=%s", modelTok, growthParamsTok, item.ID.Z))
		}
		pkID := types.MultipoleID{Model: modelTok, K: item.ID.K, Z: item.ID.Z, UV: item.ID.UV, IR: item.ID.IR, IRResum: irResum}
		pk, ok, err := s.store.FindMultipolePk(pkID)
		if err != nil {
			return err
		}
		if !ok {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("counterterm phase: missing multipole P(k) at k=%s,z=%s", item.ID.K, item.ID.Z))
		}
		dispatches = append(dispatches, wire.CountertermDispatch{Item: item, Growth: growthSample, Pk: pk, K: kVal[item.ID.K.ID()]})
	}

	return runPhase[wire.CountertermDispatch, types.CountertermWorkResult](ctx, s, wire.PhaseCounterterm, dispatches, func(r types.CountertermWorkResult) error {
		return s.store.StoreCountertermResult(r.Result)
	})
}
