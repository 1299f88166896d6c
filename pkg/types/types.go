package types

import (
	"time"

	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/units"
)

// FRWModel is a background cosmology: Omega_m, Omega_Lambda, h,
// T_CMB and N_eff. Immutable once tokenized.
type FRWModel struct {
	OmegaM      float64
	OmegaLambda float64
	H           float64
	TCMB        float64
	NEff        float64
}

// Tolerance used by pkg/storage when matching an FRWModel against
// already-stored rows.
const FRWModelTolerance = 1e-5

// WithinTolerance reports whether m and o match within FRWModelTolerance
// on every field, relative to m's value except where m's value is
// exactly zero (then absolute).
func (m FRWModel) WithinTolerance(o FRWModel) bool {
	return relClose(m.OmegaM, o.OmegaM, FRWModelTolerance) &&
		relClose(m.OmegaLambda, o.OmegaLambda, FRWModelTolerance) &&
		relClose(m.H, o.H, FRWModelTolerance) &&
		relClose(m.TCMB, o.TCMB, FRWModelTolerance) &&
		relClose(m.NEff, o.NEff, FRWModelTolerance)
}

func relClose(a, b, tol float64) bool {
	if a == 0 {
		return absf(b) < tol
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d/absf(a) < tol
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// RedshiftTolerance is the tolerance for redshift tokenization:
// relative, except absolute near z = 0.
const RedshiftTolerance = 1e-5

// RedshiftsMatch compares two redshifts: absolute when either side is
// zero, relative otherwise, so tokenizing 5e-6 after 0.0 collapses to
// the same identifier regardless of which arrived first.
func RedshiftsMatch(a, b float64) bool {
	if a == 0 || b == 0 {
		return absf(a-b) < RedshiftTolerance
	}
	return relClose(a, b, RedshiftTolerance)
}

// WavenumberTolerance is the tolerance for wavenumber tokenization.
const WavenumberTolerance = 1e-10

// WavenumbersMatch reports whether two wavenumbers collapse to the
// same token.
func WavenumbersMatch(a, b units.Quantity[units.Energy]) bool {
	return units.RelativeDifference(a, b) < WavenumberTolerance
}

// LinearPkMeta is the registry row for a tabulated linear power
// spectrum: its source path and content identity. The identity is
// the content hash, so moving the file on disk does not mint a new
// token.
type LinearPkMeta struct {
	Model token.Model
	Path  string
	MD5   [16]byte
}

// LinearPkSample is one (k, P) row of a tabulated linear spectrum.
type LinearPkSample struct {
	K units.Quantity[units.Energy]
	P float64
}

// GrowthParams is the tolerance/mode parameter block for the growth
// ODE integrator. Every recognised field is enumerated here; a
// zero-value block never stands in for a particular choice.
type GrowthParams struct {
	AbsTol   float64
	RelTol   float64
	ZInitial float64
}

// LoopParams is the tolerance/mode parameter block for loop-kernel
// integration.
type LoopParams struct {
	AbsTol13 float64
	RelTol13 float64
	AbsTol22 float64
	RelTol22 float64
}

// MatsubaraXYParams is the parameter block for IR-resummation
// coefficient computation.
type MatsubaraXYParams struct {
	AbsTol float64
	RelTol float64
}

// FilterParams is the parameter block for Eisenstein-Hu no-wiggle
// filtering of a tabulated linear spectrum.
type FilterParams struct {
	SmoothingScale float64 // Gaussian smoothing width in log10(k) for the wiggle extraction
}

// GrowthSample holds the eight growth functions and their logarithmic
// derivatives at one redshift.
type GrowthSample struct {
	Model        token.Model
	GrowthParams token.GrowthParams
	Z            token.Redshift

	G, A, B, D, E, F, Gr, J         float64
	FG, FA, FB, FD, FE, FF, FGr, FJ float64
}

// LoopKernelKind distinguishes the two loop-integral families
// (13-type and 22-type), each with its own retry budget.
type LoopKernelKind int

const (
	KernelThirteen LoopKernelKind = iota
	KernelTwentyTwo
)

func (k LoopKernelKind) String() string {
	if k == KernelThirteen {
		return "13"
	}
	return "22"
}

// LoopKernelLabel names one member of the kernel family named by a
// LoopKernelKind. The label set is small and fixed; it is not meant
// to be exhaustive of every possible one-loop diagram, only of the
// ones this catalogue persists.
type LoopKernelLabel string

const (
	LabelPtree LoopKernelLabel = "tree"
	LabelP22dd LoopKernelLabel = "P22_dd"
	LabelP22dt LoopKernelLabel = "P22_dt"
	LabelP22tt LoopKernelLabel = "P22_tt"
	LabelP13dd LoopKernelLabel = "P13_dd"
	LabelP13dt LoopKernelLabel = "P13_dt"
	LabelP13tt LoopKernelLabel = "P13_tt"
)

// LoopKernelID identifies a loop kernel request together with its
// (k, UV, IR) context and parent Pk/parameter tokens.
type LoopKernelID struct {
	Model  token.Model
	Params token.LoopParams
	K      token.Wavenumber
	Pk     token.LinearPk
	UV     token.UVCutoff
	IR     token.IRCutoff
	Kind   LoopKernelKind
	Label  LoopKernelLabel
}

// LoopKernelResult is one computed loop integral: value, 1-sigma
// error, region count, evaluation count, wall-time, and whether the
// cubature driver reported convergence.
type LoopKernelResult struct {
	ID LoopKernelID

	Value       float64
	Error       float64
	Regions     int
	Evaluations int
	WallTime    time.Duration
	Converged   bool

	// FinalAbsTol/FinalRelTol are the (abs_tol, rel_tol) pair the
	// last retry attempt ran with. The non-convergence warning names
	// these, not the original request tolerances the retry loop
	// relaxed away from.
	FinalAbsTol float64
	FinalRelTol float64
}

// MuPower enumerates the even powers of mu (cosine to the line of
// sight) that an assembled P(k) entry is decomposed over.
type MuPower int

const (
	Mu0 MuPower = 0
	Mu2 MuPower = 2
	Mu4 MuPower = 4
	Mu6 MuPower = 6
	Mu8 MuPower = 8
)

// AssembledPkID identifies one assembled one-loop P(k) entry.
type AssembledPkID struct {
	Model        token.Model
	GrowthParams token.GrowthParams
	LoopParams   token.LoopParams
	PkInit       token.LinearPk
	PkFinal      *token.LinearPk // nil means no final spectrum was configured
	K            token.Wavenumber
	Z            token.Redshift
	UV           token.UVCutoff
	IR           token.IRCutoff
}

// AssembledPkEntry decomposes the one-loop P(k) into tree, 13, 22 and
// 1-loop-SPT contributions per mu power.
type AssembledPkEntry struct {
	ID AssembledPkID

	Tree    map[MuPower]float64
	P13     map[MuPower]float64
	P22     map[MuPower]float64
	OneLoop map[MuPower]float64 // tree + P13 + P22, cached for convenience
}

// MatsubaraXYID identifies one IR-resummation coefficient pair.
type MatsubaraXYID struct {
	Model   token.Model
	Params  token.MatsubaraXYParams
	Pk      token.LinearPk
	IRResum token.IRResum
}

// MatsubaraXY holds the two IR-resummation coefficients.
type MatsubaraXY struct {
	ID   MatsubaraXYID
	X, Y float64
}

// MultipoleID identifies one (ell=0,2,4) multipole P(k) entry.
type MultipoleID struct {
	Model   token.Model
	K       token.Wavenumber
	Z       token.Redshift
	UV      token.UVCutoff
	IR      token.IRCutoff
	IRResum token.IRResum
}

// MultipolePk holds the resummed and non-resummed values for
// ell in {0, 2, 4}.
type MultipolePk struct {
	ID MultipoleID

	Resummed    map[int]float64 // keyed by ell
	NonResummed map[int]float64
}

// CountertermID identifies one counterterm coefficient row, computed
// in the final pipeline phase from the assembled multipoles and
// growth data.
type CountertermID struct {
	Model        token.Model
	GrowthParams token.GrowthParams
	K            token.Wavenumber
	Z            token.Redshift
	UV           token.UVCutoff
	IR           token.IRCutoff
}

// CountertermResult holds the effective-field-theory counterterm
// coefficients for each multipole, one value per ell.
type CountertermResult struct {
	ID    CountertermID
	ByEll map[int]float64
}
