package storage

import (
	"fmt"

	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/cuemby/oneloop/pkg/metrics"
	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// storeRow inserts one result row in its own transaction, guarded by
// the same txGuard as tokenize so a concurrent tokenize can't
// interleave an open write transaction with this one. Every parent
// token is checked to exist before the put commits, which is what
// keeps orphan rows out of a store with no relational backend.
func (s *BoltStore) storeRow(table string, bucket []byte, key []byte, v interface{}, parents map[string]uint32) error {
	if err := s.tx.acquire(); err != nil {
		return err
	}
	defer s.tx.release()

	err := s.db.Update(func(tx *bolt.Tx) error {
		for name, id := range parents {
			b := tx.Bucket([]byte(name))
			if b == nil || b.Get(idKey(id)) == nil {
				return errkind.Wrap(errkind.Consistency, fmt.Errorf("orphan row: parent %s#%d does not exist", name, id))
			}
		}
		return putJSON(tx.Bucket(bucket), key, v)
	})
	if err != nil {
		return wrapDB(err)
	}
	metrics.ResultsCommittedTotal.WithLabelValues(table).Inc()
	return nil
}

func findRow[T any](db *bolt.DB, bucket []byte, key []byte) (T, bool, error) {
	var v T
	var ok bool
	err := db.View(func(tx *bolt.Tx) error {
		var err error
		ok, err = getJSON(tx.Bucket(bucket), key, &v)
		return err
	})
	if err != nil {
		return v, false, errkind.Wrap(errkind.Database, err)
	}
	return v, ok, nil
}

// StoreFilterResult records a filtered (wiggle, no-wiggle) pair.
func (s *BoltStore) StoreFilterResult(r types.FilterResult) error {
	key := filterKey(r.Item.Model, r.Item.K, r.Item.Pk, r.Item.Params)
	parents := map[string]uint32{
		string(bucketModels):       r.Item.Model.ID(),
		string(bucketWaveGeneric):  r.Item.K.ID(),
		string(bucketLinearPkMeta): r.Item.Pk.ID(),
		string(bucketFilterParams): r.Item.Params.ID(),
	}
	return s.storeRow("filter", bucketFilterResults, key, r, parents)
}

// FindFilterResult reads back a previously stored filter result.
func (s *BoltStore) FindFilterResult(item types.FilterWorkItem) (types.FilterResult, bool, error) {
	key := filterKey(item.Model, item.K, item.Pk, item.Params)
	return findRow[types.FilterResult](s.db, bucketFilterResults, key)
}

// StoreGrowthSample records one solved growth sample.
func (s *BoltStore) StoreGrowthSample(sample types.GrowthSample) error {
	key := growthKey(sample.Model, sample.GrowthParams, sample.Z)
	parents := map[string]uint32{
		string(bucketModels):       sample.Model.ID(),
		string(bucketGrowthParams): sample.GrowthParams.ID(),
		string(bucketRedshifts):    sample.Z.ID(),
	}
	return s.storeRow("growth", bucketGrowthSamples, key, sample, parents)
}

// FindGrowthSample reads back a previously solved growth sample.
func (s *BoltStore) FindGrowthSample(model token.Model, params token.GrowthParams, z token.Redshift) (types.GrowthSample, bool, error) {
	key := growthKey(model, params, z)
	return findRow[types.GrowthSample](s.db, bucketGrowthSamples, key)
}

// StoreMatsubaraXY records one computed IR-resummation coefficient pair.
func (s *BoltStore) StoreMatsubaraXY(xy types.MatsubaraXY) error {
	key := matsubaraXYKey(xy.ID.Model, xy.ID.Params, xy.ID.Pk, xy.ID.IRResum)
	parents := map[string]uint32{
		string(bucketModels):       xy.ID.Model.ID(),
		string(bucketXYParams):     xy.ID.Params.ID(),
		string(bucketLinearPkMeta): xy.ID.Pk.ID(),
		string(bucketWaveIRResum):  xy.ID.IRResum.ID(),
	}
	return s.storeRow("matsubara_xy", bucketMatsubaraXY, key, xy, parents)
}

// FindMatsubaraXY reads back a previously computed (X,Y) pair.
func (s *BoltStore) FindMatsubaraXY(id types.MatsubaraXYID) (types.MatsubaraXY, bool, error) {
	key := matsubaraXYKey(id.Model, id.Params, id.Pk, id.IRResum)
	return findRow[types.MatsubaraXY](s.db, bucketMatsubaraXY, key)
}

// StoreLoopKernelResult records one integrated loop kernel, converged
// or not; failure is recorded with a flag, not dropped.
func (s *BoltStore) StoreLoopKernelResult(r types.LoopKernelResult) error {
	key := loopKernelKey(r.ID.Model, r.ID.Params, r.ID.K, r.ID.Pk, r.ID.UV, r.ID.IR, byte(r.ID.Kind), string(r.ID.Label))
	parents := map[string]uint32{
		string(bucketModels):       r.ID.Model.ID(),
		string(bucketLoopParams):   r.ID.Params.ID(),
		string(bucketWaveGeneric):  r.ID.K.ID(),
		string(bucketLinearPkMeta): r.ID.Pk.ID(),
		string(bucketWaveUV):       r.ID.UV.ID(),
		string(bucketWaveIR):       r.ID.IR.ID(),
	}
	return s.storeRow("loop_kernel", bucketLoopKernelResults, key, r, parents)
}

// FindLoopKernelResult reads back a previously integrated loop kernel.
func (s *BoltStore) FindLoopKernelResult(id types.LoopKernelID) (types.LoopKernelResult, bool, error) {
	key := loopKernelKey(id.Model, id.Params, id.K, id.Pk, id.UV, id.IR, byte(id.Kind), string(id.Label))
	return findRow[types.LoopKernelResult](s.db, bucketLoopKernelResults, key)
}

// StoreAssembledPk records one assembled one-loop P(k) entry.
func (s *BoltStore) StoreAssembledPk(e types.AssembledPkEntry) error {
	key := assembledPkKey(e.ID.Model, e.ID.GrowthParams, e.ID.LoopParams, e.ID.PkInit, e.ID.PkFinal, e.ID.K, e.ID.Z, e.ID.UV, e.ID.IR)
	parents := map[string]uint32{
		string(bucketModels):       e.ID.Model.ID(),
		string(bucketGrowthParams): e.ID.GrowthParams.ID(),
		string(bucketLoopParams):   e.ID.LoopParams.ID(),
		string(bucketLinearPkMeta): e.ID.PkInit.ID(),
		string(bucketWaveGeneric):  e.ID.K.ID(),
		string(bucketRedshifts):    e.ID.Z.ID(),
		string(bucketWaveUV):       e.ID.UV.ID(),
		string(bucketWaveIR):       e.ID.IR.ID(),
	}
	return s.storeRow("assembled_pk", bucketAssembledPk, key, e, parents)
}

// FindAssembledPk reads back a previously assembled one-loop P(k) entry.
func (s *BoltStore) FindAssembledPk(id types.AssembledPkID) (types.AssembledPkEntry, bool, error) {
	key := assembledPkKey(id.Model, id.GrowthParams, id.LoopParams, id.PkInit, id.PkFinal, id.K, id.Z, id.UV, id.IR)
	return findRow[types.AssembledPkEntry](s.db, bucketAssembledPk, key)
}

// StoreMultipolePk records one assembled multipole P(k) entry.
func (s *BoltStore) StoreMultipolePk(p types.MultipolePk) error {
	key := multipoleKey(p.ID.Model, p.ID.K, p.ID.Z, p.ID.UV, p.ID.IR, p.ID.IRResum)
	parents := map[string]uint32{
		string(bucketModels):      p.ID.Model.ID(),
		string(bucketWaveGeneric): p.ID.K.ID(),
		string(bucketRedshifts):   p.ID.Z.ID(),
		string(bucketWaveUV):      p.ID.UV.ID(),
		string(bucketWaveIR):      p.ID.IR.ID(),
		string(bucketWaveIRResum): p.ID.IRResum.ID(),
	}
	return s.storeRow("multipole_pk", bucketMultipolePk, key, p, parents)
}

// FindMultipolePk reads back a previously assembled multipole entry.
func (s *BoltStore) FindMultipolePk(id types.MultipoleID) (types.MultipolePk, bool, error) {
	key := multipoleKey(id.Model, id.K, id.Z, id.UV, id.IR, id.IRResum)
	return findRow[types.MultipolePk](s.db, bucketMultipolePk, key)
}

// StoreCountertermResult records one counterterm coefficient row.
func (s *BoltStore) StoreCountertermResult(r types.CountertermResult) error {
	key := countertermKey(r.ID.Model, r.ID.GrowthParams, r.ID.K, r.ID.Z, r.ID.UV, r.ID.IR)
	parents := map[string]uint32{
		string(bucketModels):       r.ID.Model.ID(),
		string(bucketGrowthParams): r.ID.GrowthParams.ID(),
		string(bucketWaveGeneric):  r.ID.K.ID(),
		string(bucketRedshifts):    r.ID.Z.ID(),
		string(bucketWaveUV):       r.ID.UV.ID(),
		string(bucketWaveIR):       r.ID.IR.ID(),
	}
	return s.storeRow("counterterm", bucketCountertermResults, key, r, parents)
}

// FindCountertermResult reads back a previously assembled counterterm row.
func (s *BoltStore) FindCountertermResult(id types.CountertermID) (types.CountertermResult, bool, error) {
	key := countertermKey(id.Model, id.GrowthParams, id.K, id.Z, id.UV, id.IR)
	return findRow[types.CountertermResult](s.db, bucketCountertermResults, key)
}
