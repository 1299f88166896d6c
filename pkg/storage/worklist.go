package storage

import (
	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/cuemby/oneloop/pkg/metrics"
	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// residual filters candidate items down to those whose keyFn is
// absent from bucket, an anti-join against the result table. It runs
// as a single read transaction over the whole candidate set, which is
// the expensive half of every Build*WorkList method;
// the caller is expected to have already materialised the Cartesian
// product of requested tokens into candidates.
func residual[T any](db *bolt.DB, bucket []byte, phase string, candidates []T, keyFn func(T) []byte) ([]T, error) {
	var out []T
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		for _, c := range candidates {
			if b.Get(keyFn(c)) == nil {
				out = append(out, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Database, err)
	}
	metrics.WorkListSize.WithLabelValues(phase).Set(float64(len(out)))
	return out, nil
}

// BuildFilterWorkList returns the residual (model, k) pairs not yet
// filtered.
func (s *BoltStore) BuildFilterWorkList(model token.Model, ks []token.Wavenumber, pk token.LinearPk, params token.FilterParams) ([]types.FilterWorkItem, error) {
	candidates := make([]types.FilterWorkItem, 0, len(ks))
	for _, k := range ks {
		candidates = append(candidates, types.FilterWorkItem{Model: model, K: k, Pk: pk, Params: params})
	}
	return residual(s.db, bucketFilterResults, "filter", candidates, func(it types.FilterWorkItem) []byte {
		return filterKey(it.Model, it.K, it.Pk, it.Params)
	})
}

// BuildGrowthWorkList returns the residual (model, z) pairs not yet solved.
func (s *BoltStore) BuildGrowthWorkList(model token.Model, zs []token.Redshift, params token.GrowthParams) ([]types.GrowthWorkItem, error) {
	candidates := make([]types.GrowthWorkItem, 0, len(zs))
	for _, z := range zs {
		candidates = append(candidates, types.GrowthWorkItem{Model: model, Z: z, Params: params})
	}
	return residual(s.db, bucketGrowthSamples, "growth", candidates, func(it types.GrowthWorkItem) []byte {
		return growthKey(it.Model, it.Params, it.Z)
	})
}

// BuildMatsubaraWorkList returns the residual IR-resummation scales
// not yet computed for (model, pk, params).
func (s *BoltStore) BuildMatsubaraWorkList(model token.Model, irResums []token.IRResum, pk token.LinearPk, params token.MatsubaraXYParams) ([]types.MatsubaraWorkItem, error) {
	candidates := make([]types.MatsubaraWorkItem, 0, len(irResums))
	for _, ir := range irResums {
		candidates = append(candidates, types.MatsubaraWorkItem{Model: model, IRResum: ir, Pk: pk, Params: params})
	}
	return residual(s.db, bucketMatsubaraXY, "matsubara", candidates, func(it types.MatsubaraWorkItem) []byte {
		return matsubaraXYKey(it.Model, it.Params, it.Pk, it.IRResum)
	})
}

// BuildLoopKernelWorkList materialises the Cartesian product of
// (k, uv, ir, kind, label) and returns the residual combinations not
// yet integrated.
func (s *BoltStore) BuildLoopKernelWorkList(model token.Model, params token.LoopParams, ks []token.Wavenumber, pk token.LinearPk, uvs []token.UVCutoff, irs []token.IRCutoff, kinds []types.LoopKernelKind, labels []types.LoopKernelLabel) ([]types.LoopKernelWorkItem, error) {
	var candidates []types.LoopKernelWorkItem
	for _, k := range ks {
		for _, uv := range uvs {
			for _, ir := range irs {
				for _, kind := range kinds {
					for _, label := range labels {
						candidates = append(candidates, types.LoopKernelWorkItem{ID: types.LoopKernelID{
							Model: model, Params: params, K: k, Pk: pk, UV: uv, IR: ir, Kind: kind, Label: label,
						}})
					}
				}
			}
		}
	}
	return residual(s.db, bucketLoopKernelResults, "loop_kernel", candidates, func(it types.LoopKernelWorkItem) []byte {
		id := it.ID
		return loopKernelKey(id.Model, id.Params, id.K, id.Pk, id.UV, id.IR, byte(id.Kind), string(id.Label))
	})
}

// BuildAssembleWorkList materialises the Cartesian product of (k, z, uv, ir).
func (s *BoltStore) BuildAssembleWorkList(model token.Model, growthParams token.GrowthParams, loopParams token.LoopParams, pkInit token.LinearPk, pkFinal *token.LinearPk, ks []token.Wavenumber, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff) ([]types.AssembleWorkItem, error) {
	var candidates []types.AssembleWorkItem
	for _, k := range ks {
		for _, z := range zs {
			for _, uv := range uvs {
				for _, ir := range irs {
					candidates = append(candidates, types.AssembleWorkItem{ID: types.AssembledPkID{
						Model: model, GrowthParams: growthParams, LoopParams: loopParams,
						PkInit: pkInit, PkFinal: pkFinal, K: k, Z: z, UV: uv, IR: ir,
					}})
				}
			}
		}
	}
	return residual(s.db, bucketAssembledPk, "assemble", candidates, func(it types.AssembleWorkItem) []byte {
		id := it.ID
		return assembledPkKey(id.Model, id.GrowthParams, id.LoopParams, id.PkInit, id.PkFinal, id.K, id.Z, id.UV, id.IR)
	})
}

// BuildMultipoleWorkList materialises the Cartesian product of
// (k, z, uv, ir, ir-resum).
func (s *BoltStore) BuildMultipoleWorkList(model token.Model, ks []token.Wavenumber, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff, irResums []token.IRResum) ([]types.MultipoleWorkItem, error) {
	var candidates []types.MultipoleWorkItem
	for _, k := range ks {
		for _, z := range zs {
			for _, uv := range uvs {
				for _, ir := range irs {
					for _, irResum := range irResums {
						candidates = append(candidates, types.MultipoleWorkItem{ID: types.MultipoleID{
							Model: model, K: k, Z: z, UV: uv, IR: ir, IRResum: irResum,
						}})
					}
				}
			}
		}
	}
	return residual(s.db, bucketMultipolePk, "multipole", candidates, func(it types.MultipoleWorkItem) []byte {
		id := it.ID
		return multipoleKey(id.Model, id.K, id.Z, id.UV, id.IR, id.IRResum)
	})
}

// BuildCountertermWorkList materialises the Cartesian product of
// (k, z, uv, ir).
func (s *BoltStore) BuildCountertermWorkList(model token.Model, growthParams token.GrowthParams, ks []token.Wavenumber, zs []token.Redshift, uvs []token.UVCutoff, irs []token.IRCutoff) ([]types.CountertermWorkItem, error) {
	var candidates []types.CountertermWorkItem
	for _, k := range ks {
		for _, z := range zs {
			for _, uv := range uvs {
				for _, ir := range irs {
					candidates = append(candidates, types.CountertermWorkItem{ID: types.CountertermID{
						Model: model, GrowthParams: growthParams, K: k, Z: z, UV: uv, IR: ir,
					}})
				}
			}
		}
	}
	return residual(s.db, bucketCountertermResults, "counterterm", candidates, func(it types.CountertermWorkItem) []byte {
		id := it.ID
		return countertermKey(id.Model, id.GrowthParams, id.K, id.Z, id.UV, id.IR)
	})
}
