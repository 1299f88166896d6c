package wire

import "github.com/cuemby/oneloop/pkg/types"

// Dispatch payloads bundle a phase's token-keyed WorkItem (its
// persistent identity) with the resolved physical values a worker
// needs to actually compute it. Workers hold no global state and
// never touch the store, so the
// master resolves every token to a value before dispatch and the
// worker reports back against the same WorkItem identity.

// FilterDispatch is NEW_ITEM's payload for the filtering phase.
type FilterDispatch struct {
	Item    types.FilterWorkItem
	Model   types.FRWModel
	Samples []types.LinearPkSample
	Params  types.FilterParams
	K       float64
}

// GrowthDispatch is NEW_ITEM's payload for the growth-ODE phase.
type GrowthDispatch struct {
	Item   types.GrowthWorkItem
	Model  types.FRWModel
	Params types.GrowthParams
	Z      float64
}

// MatsubaraDispatch is NEW_ITEM's payload for the Matsubara (X,Y) phase.
type MatsubaraDispatch struct {
	Item    types.MatsubaraWorkItem
	Model   types.FRWModel
	Samples []types.LinearPkSample
	Params  types.MatsubaraXYParams
	IRResum float64
}

// LoopKernelDispatch is NEW_ITEM's payload for the loop-kernel phase.
// Each kernel is integrated twice, once against the raw linear
// spectrum and once against its no-wiggle counterpart, as two
// separate dispatches sharing a label but differing in Item.ID.Pk
// and Samples, so the two calls share no state.
type LoopKernelDispatch struct {
	Item      types.LoopKernelWorkItem
	Model     types.FRWModel
	Samples   []types.LinearPkSample
	Params    types.LoopParams
	K, UV, IR float64
}

// AssembleDispatch is NEW_ITEM's payload for the one-loop assembly
// phase: the growth sample plus every loop-kernel result by label,
// for both the raw and (if present) no-wiggle spectra. Final is the
// growth-rescaled final spectrum's table, nil when only an initial
// spectrum is configured; when present the tree term is read from it
// at the item's wavenumber K instead of from the tree kernel.
type AssembleDispatch struct {
	Item   types.AssembleWorkItem
	Growth types.GrowthSample
	Raw    map[types.LoopKernelLabel]types.LoopKernelResult
	NW     map[types.LoopKernelLabel]types.LoopKernelResult
	Final  []types.LinearPkSample
	K      float64
}

// MultipoleDispatch is NEW_ITEM's payload for the multipole phase.
type MultipoleDispatch struct {
	Item  types.MultipoleWorkItem
	Entry types.AssembledPkEntry
	XY    types.MatsubaraXY
	HasXY bool
	K     float64
}

// CountertermDispatch is NEW_ITEM's payload for the counterterm phase.
type CountertermDispatch struct {
	Item   types.CountertermWorkItem
	Growth types.GrowthSample
	Pk     types.MultipolePk
	K      float64
}
