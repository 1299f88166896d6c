package types

import "github.com/cuemby/oneloop/pkg/token"

// This file defines the seven phase-specific work-item/result payload
// pairs dispatched by pkg/scheduler and executed by pkg/worker. Each
// pair is a small, self-contained struct with no shared WorkItem
// interface: the dispatch machinery in pkg/wire is generic over the
// message envelope, not over the payload shape.

// FilterWorkItem requests Eisenstein-Hu no-wiggle filtering of a
// tabulated linear spectrum at one k (phase i).
type FilterWorkItem struct {
	Model  token.Model
	K      token.Wavenumber
	Pk     token.LinearPk
	Params token.FilterParams
}

// FilterResult is the filtered (wiggle, no-wiggle) pair of P(k) values
// at the requested k.
type FilterResult struct {
	Item     FilterWorkItem
	Wiggle   float64
	NoWiggle float64
}

// GrowthWorkItem requests the growth-ODE solve at one redshift (phase ii).
type GrowthWorkItem struct {
	Model  token.Model
	Z      token.Redshift
	Params token.GrowthParams
}

// GrowthResult carries the solved growth sample.
type GrowthResult struct {
	Item   GrowthWorkItem
	Sample GrowthSample
}

// MatsubaraWorkItem requests the (X,Y) IR-resummation coefficients at
// one IR-resummation scale (phase iii).
type MatsubaraWorkItem struct {
	Model   token.Model
	IRResum token.IRResum
	Pk      token.LinearPk
	Params  token.MatsubaraXYParams
}

// MatsubaraResult carries the computed (X,Y) pair.
type MatsubaraResult struct {
	Item MatsubaraWorkItem
	XY   MatsubaraXY
}

// LoopKernelWorkItem requests one loop-kernel integral (phase iv).
type LoopKernelWorkItem struct {
	ID LoopKernelID
}

// LoopKernelWorkResult carries the integrated kernel, converged or not.
type LoopKernelWorkResult struct {
	Item   LoopKernelWorkItem
	Result LoopKernelResult
}

// AssembleWorkItem requests one-loop P(k) assembly at one (k,z) with
// an optional final spectrum (phase v).
type AssembleWorkItem struct {
	ID AssembledPkID
}

// AssembleResult carries the assembled entry.
type AssembleResult struct {
	Item  AssembleWorkItem
	Entry AssembledPkEntry
}

// MultipoleWorkItem requests multipole assembly at one (k,z) (phase vi).
type MultipoleWorkItem struct {
	ID MultipoleID
}

// MultipoleResult carries the assembled multipole.
type MultipoleResult struct {
	Item MultipoleWorkItem
	Pk   MultipolePk
}

// CountertermWorkItem requests counterterm assembly at one (k,z) (phase vii).
type CountertermWorkItem struct {
	ID CountertermID
}

// CountertermWorkResult carries the assembled counterterm coefficients.
type CountertermWorkResult struct {
	Item   CountertermWorkItem
	Result CountertermResult
}
