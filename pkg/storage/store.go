package storage

import (
	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
)

// Store is the data manager's public contract: a
// content-addressed, transactional store that tokenizes inputs,
// differences requested token products against what is already
// computed, and records phase results.
type Store interface {
	// Tokenize assigns or recovers the stable identifier for each
	// entity kind tokenized by this system. A lookup that matches
	// within tolerance against more than one stored row is a fatal
	// consistency error (errkind.Consistency).
	TokenizeModel(m types.FRWModel) (token.Model, error)
	TokenizeRedshift(z float64) (token.Redshift, error)
	TokenizeWavenumberGeneric(k units.Quantity[units.Energy]) (token.Wavenumber, error)
	TokenizeUVCutoff(k units.Quantity[units.Energy]) (token.UVCutoff, error)
	TokenizeIRCutoff(k units.Quantity[units.Energy]) (token.IRCutoff, error)
	TokenizeIRResum(k units.Quantity[units.Energy]) (token.IRResum, error)
	TokenizeLinearPk(meta types.LinearPkMeta, samples []types.LinearPkSample) (token.LinearPk, error)
	TokenizeGrowthParams(p types.GrowthParams) (token.GrowthParams, error)
	TokenizeLoopParams(p types.LoopParams) (token.LoopParams, error)
	TokenizeMatsubaraXYParams(p types.MatsubaraXYParams) (token.MatsubaraXYParams, error)
	TokenizeFilterParams(p types.FilterParams) (token.FilterParams, error)

	// LinearPkSamples reads back the tabulated samples for a
	// previously tokenized spectrum.
	LinearPkSamples(pk token.LinearPk) ([]types.LinearPkSample, error)
	GrowthParamsByToken(p token.GrowthParams) (types.GrowthParams, error)
	LoopParamsByToken(p token.LoopParams) (types.LoopParams, error)
	MatsubaraXYParamsByToken(p token.MatsubaraXYParams) (types.MatsubaraXYParams, error)
	FilterParamsByToken(p token.FilterParams) (types.FilterParams, error)
	RedshiftByToken(z token.Redshift) (float64, error)

	// BuildFilterWorkList returns the residual (model, k) pairs not
	// yet present in the filter-result table.
	BuildFilterWorkList(model token.Model, ks []token.Wavenumber, pk token.LinearPk, params token.FilterParams) ([]types.FilterWorkItem, error)
	BuildGrowthWorkList(model token.Model, zs []token.Redshift, params token.GrowthParams) ([]types.GrowthWorkItem, error)
	BuildMatsubaraWorkList(model token.Model, irResums []token.IRResum, pk token.LinearPk, params token.MatsubaraXYParams) ([]types.MatsubaraWorkItem, error)
	BuildLoopKernelWorkList(model token.Model, params token.LoopParams, ks []token.Wavenumber, pk token.LinearPk, uvs []token.UVCutoff, irs []token.IRCutoff, kinds []types.LoopKernelKind, labels []types.LoopKernelLabel) ([]types.LoopKernelWorkItem, error)
	BuildAssembleWorkList(model token.Model, growthParams token.GrowthParams, loopParams token.LoopParams, pkInit token.LinearPk, pkFinal *token.LinearPk, ks []token.Wavenumber, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff) ([]types.AssembleWorkItem, error)
	BuildMultipoleWorkList(model token.Model, ks []token.Wavenumber, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff, irResums []token.IRResum) ([]types.MultipoleWorkItem, error)
	BuildCountertermWorkList(model token.Model, growthParams token.GrowthParams, ks []token.Wavenumber, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff) ([]types.CountertermWorkItem, error)

	// Store records a result row within its own transaction. Writes
	// referencing non-existent parent tokens fail the transaction
	// (errkind.Consistency).
	StoreFilterResult(r types.FilterResult) error
	StoreGrowthSample(s types.GrowthSample) error
	StoreMatsubaraXY(xy types.MatsubaraXY) error
	StoreLoopKernelResult(r types.LoopKernelResult) error
	StoreAssembledPk(e types.AssembledPkEntry) error
	StoreMultipolePk(p types.MultipolePk) error
	StoreCountertermResult(r types.CountertermResult) error

	// Find reads back a previously stored payload. The bool result
	// is false iff the row is absent.
	FindFilterResult(item types.FilterWorkItem) (types.FilterResult, bool, error)
	FindGrowthSample(model token.Model, params token.GrowthParams, z token.Redshift) (types.GrowthSample, bool, error)
	FindMatsubaraXY(id types.MatsubaraXYID) (types.MatsubaraXY, bool, error)
	FindLoopKernelResult(id types.LoopKernelID) (types.LoopKernelResult, bool, error)
	FindAssembledPk(id types.AssembledPkID) (types.AssembledPkEntry, bool, error)
	FindMultipolePk(id types.MultipoleID) (types.MultipolePk, bool, error)
	FindCountertermResult(id types.CountertermID) (types.CountertermResult, bool, error)

	// Stats reports the row count of every table bucket, for the
	// CLI's read-only inspection report.
	Stats() (map[string]int, error)

	Close() error
}
