package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/cuemby/oneloop/pkg/token"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/units"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketModels      = []byte("models")
	bucketRedshifts   = []byte("redshifts")
	bucketWaveGeneric = []byte("wavenumbers_generic")
	bucketWaveUV      = []byte("wavenumbers_uv")
	bucketWaveIR      = []byte("wavenumbers_ir")
	bucketWaveIRResum = []byte("wavenumbers_ir_resum")

	bucketLinearPkMeta = []byte("linear_pk_meta")
	bucketLinearPkData = []byte("linear_pk_data")

	bucketGrowthParams = []byte("growth_params")
	bucketLoopParams   = []byte("loop_params")
	bucketXYParams     = []byte("matsubara_xy_params")
	bucketFilterParams = []byte("filter_params")

	bucketFilterResults      = []byte("filter_results")
	bucketGrowthSamples      = []byte("growth_samples")
	bucketMatsubaraXY        = []byte("matsubara_xy")
	bucketLoopKernelResults  = []byte("loop_kernel_results")
	bucketAssembledPk        = []byte("assembled_pk")
	bucketMultipolePk        = []byte("multipole_pk")
	bucketCountertermResults = []byte("counterterm_results")

	allBuckets = [][]byte{
		bucketModels, bucketRedshifts,
		bucketWaveGeneric, bucketWaveUV, bucketWaveIR, bucketWaveIRResum,
		bucketLinearPkMeta, bucketLinearPkData,
		bucketGrowthParams, bucketLoopParams, bucketXYParams, bucketFilterParams,
		bucketFilterResults, bucketGrowthSamples, bucketMatsubaraXY,
		bucketLoopKernelResults, bucketAssembledPk, bucketMultipolePk,
		bucketCountertermResults,
	}
)

// BoltStore implements Store on top of go.etcd.io/bbolt, the data
// manager's only persistence dependency. Foreign-key semantics are
// enforced at the application level, by storeRow's parent checks.
type BoltStore struct {
	db *bolt.DB
	tx txGuard
}

// NewBoltStore opens (creating if absent) the database file under
// dataDir and ensures every table bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "oneloop.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Database, fmt.Errorf("open database: %w", err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.Database, err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Stats reports the row count of every table bucket, keyed by bucket
// name, for the CLI's read-only inspection report.
func (s *BoltStore) Stats() (map[string]int, error) {
	out := make(map[string]int, len(allBuckets))
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			b := tx.Bucket(name)
			if b == nil {
				out[string(name)] = 0
				continue
			}
			out[string(name)] = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Database, err)
	}
	return out, nil
}

func nextID(b *bolt.Bucket) (uint32, error) {
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return uint32(seq), nil
}

func putJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func getJSON(b *bolt.Bucket, key []byte, v interface{}) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// tokenizeScalar implements the two-phase lookup/insert pattern for
// any table keyed by a bare float64: a
// read-only scan for a within-tolerance match, and only on a miss, a
// write transaction that re-scans (to cover a concurrent insert) then
// appends.
func (s *BoltStore) tokenizeScalar(bucket []byte, raw float64, match func(existing float64) bool) (uint32, error) {
	found, matches, err := s.scanScalar(bucket, match)
	if err != nil {
		return 0, err
	}
	if matches > 1 {
		return 0, errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored rows in %s match within tolerance", matches, bucket))
	}
	if found != 0 {
		return found, nil
	}

	if err := s.tx.acquire(); err != nil {
		return 0, err
	}
	defer s.tx.release()

	var id uint32
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		existing, n, err := scanScalarBucket(b, match)
		if err != nil {
			return err
		}
		if n > 1 {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored rows in %s match within tolerance", n, bucket))
		}
		if existing != 0 {
			id = existing
			return nil
		}
		newID, err := nextID(b)
		if err != nil {
			return err
		}
		if err := putJSON(b, idKey(newID), raw); err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return 0, wrapDB(err)
	}
	return id, nil
}

func (s *BoltStore) scanScalar(bucket []byte, match func(float64) bool) (id uint32, matches int, err error) {
	viewErr := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		var scanErr error
		id, matches, scanErr = scanScalarBucket(b, match)
		return scanErr
	})
	if viewErr != nil {
		return 0, 0, errkind.Wrap(errkind.Database, viewErr)
	}
	return id, matches, nil
}

func scanScalarBucket(b *bolt.Bucket, match func(float64) bool) (uint32, int, error) {
	var found uint32
	var count int
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var value float64
		if err := json.Unmarshal(v, &value); err != nil {
			return 0, 0, err
		}
		if match(value) {
			count++
			found = keyID(k)
		}
	}
	return found, count, nil
}

func idKey(id uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return b[:]
}

func keyID(k []byte) uint32 {
	return binary.BigEndian.Uint32(k)
}

// wrapDB tags err as a database failure unless a more specific kind
// was already attached further down.
func wrapDB(err error) error {
	if err == nil {
		return nil
	}
	if errkind.Classify(err) != errkind.Unknown {
		return err
	}
	return errkind.Wrap(errkind.Database, err)
}

// TokenizeModel assigns or recovers the identifier for m (tolerance:
// types.FRWModelTolerance, relative per field).
func (s *BoltStore) TokenizeModel(m types.FRWModel) (token.Model, error) {
	found, matches, err := s.scanModels(func(o types.FRWModel) bool { return m.WithinTolerance(o) })
	if err != nil {
		return token.Model{}, err
	}
	if matches > 1 {
		return token.Model{}, errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored FRW models match within tolerance", matches))
	}
	if found != 0 {
		return token.New[token.ModelKind](found), nil
	}

	if err := s.tx.acquire(); err != nil {
		return token.Model{}, err
	}
	defer s.tx.release()

	var id uint32
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketModels)
		existing, n, err := scanModelsBucket(b, func(o types.FRWModel) bool { return m.WithinTolerance(o) })
		if err != nil {
			return err
		}
		if n > 1 {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored FRW models match within tolerance", n))
		}
		if existing != 0 {
			id = existing
			return nil
		}
		newID, err := nextID(b)
		if err != nil {
			return err
		}
		if err := putJSON(b, idKey(newID), m); err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return token.Model{}, wrapDB(err)
	}
	return token.New[token.ModelKind](id), nil
}

func (s *BoltStore) scanModels(match func(types.FRWModel) bool) (uint32, int, error) {
	var id uint32
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		var scanErr error
		id, n, scanErr = scanModelsBucket(tx.Bucket(bucketModels), match)
		return scanErr
	})
	if err != nil {
		return 0, 0, errkind.Wrap(errkind.Database, err)
	}
	return id, n, nil
}

func scanModelsBucket(b *bolt.Bucket, match func(types.FRWModel) bool) (uint32, int, error) {
	var found uint32
	var count int
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var m types.FRWModel
		if err := json.Unmarshal(v, &m); err != nil {
			return 0, 0, err
		}
		if match(m) {
			count++
			found = keyID(k)
		}
	}
	return found, count, nil
}

// TokenizeRedshift assigns or recovers the identifier for z
// (absolute comparison near z = 0, relative otherwise).
func (s *BoltStore) TokenizeRedshift(z float64) (token.Redshift, error) {
	id, err := s.tokenizeScalar(bucketRedshifts, z, func(existing float64) bool {
		return types.RedshiftsMatch(z, existing)
	})
	if err != nil {
		return token.Redshift{}, err
	}
	return token.New[token.RedshiftKind](id), nil
}

func (s *BoltStore) tokenizeWavenumber(bucket []byte, k units.Quantity[units.Energy]) (uint32, error) {
	return s.tokenizeScalar(bucket, k.Value(), func(existing float64) bool {
		return types.WavenumbersMatch(k, units.New[units.Energy](existing))
	})
}

// TokenizeWavenumberGeneric tokenizes a plain wavenumber sample
// (tolerance: types.WavenumberTolerance, relative).
func (s *BoltStore) TokenizeWavenumberGeneric(k units.Quantity[units.Energy]) (token.Wavenumber, error) {
	id, err := s.tokenizeWavenumber(bucketWaveGeneric, k)
	if err != nil {
		return token.Wavenumber{}, err
	}
	return token.New[token.WavenumberGenericKind](id), nil
}

// TokenizeUVCutoff tokenizes a wavenumber used as a UV cutoff, in
// its own role-specific table.
func (s *BoltStore) TokenizeUVCutoff(k units.Quantity[units.Energy]) (token.UVCutoff, error) {
	id, err := s.tokenizeWavenumber(bucketWaveUV, k)
	if err != nil {
		return token.UVCutoff{}, err
	}
	return token.New[token.WavenumberUVKind](id), nil
}

// TokenizeIRCutoff tokenizes a wavenumber used as an IR cutoff.
func (s *BoltStore) TokenizeIRCutoff(k units.Quantity[units.Energy]) (token.IRCutoff, error) {
	id, err := s.tokenizeWavenumber(bucketWaveIR, k)
	if err != nil {
		return token.IRCutoff{}, err
	}
	return token.New[token.WavenumberIRKind](id), nil
}

// TokenizeIRResum tokenizes a wavenumber used as an IR-resummation scale.
func (s *BoltStore) TokenizeIRResum(k units.Quantity[units.Energy]) (token.IRResum, error) {
	id, err := s.tokenizeWavenumber(bucketWaveIRResum, k)
	if err != nil {
		return token.IRResum{}, err
	}
	return token.New[token.WavenumberIRResumKind](id), nil
}

// TokenizeLinearPk tokenizes a tabulated spectrum by (model, content
// hash); moving the source file on disk never duplicates the row.
func (s *BoltStore) TokenizeLinearPk(meta types.LinearPkMeta, samples []types.LinearPkSample) (token.LinearPk, error) {
	match := func(o types.LinearPkMeta) bool {
		return o.Model == meta.Model && bytes.Equal(o.MD5[:], meta.MD5[:])
	}

	found, n, err := s.scanLinearPk(match)
	if err != nil {
		return token.LinearPk{}, err
	}
	if n > 1 {
		return token.LinearPk{}, errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored linear spectra match (model, hash)", n))
	}
	if found != 0 {
		return token.New[token.LinearPkKind](found), nil
	}

	if err := s.tx.acquire(); err != nil {
		return token.LinearPk{}, err
	}
	defer s.tx.release()

	var id uint32
	err = s.db.Update(func(tx *bolt.Tx) error {
		metaBucket := tx.Bucket(bucketLinearPkMeta)
		existing, n, err := scanLinearPkBucket(metaBucket, match)
		if err != nil {
			return err
		}
		if n > 1 {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored linear spectra match (model, hash)", n))
		}
		if existing != 0 {
			id = existing
			return nil
		}
		newID, err := nextID(metaBucket)
		if err != nil {
			return err
		}
		if err := putJSON(metaBucket, idKey(newID), meta); err != nil {
			return err
		}
		dataBucket := tx.Bucket(bucketLinearPkData)
		if err := putJSON(dataBucket, idKey(newID), samples); err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return token.LinearPk{}, wrapDB(err)
	}
	return token.New[token.LinearPkKind](id), nil
}

func (s *BoltStore) scanLinearPk(match func(types.LinearPkMeta) bool) (uint32, int, error) {
	var id uint32
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		var scanErr error
		id, n, scanErr = scanLinearPkBucket(tx.Bucket(bucketLinearPkMeta), match)
		return scanErr
	})
	if err != nil {
		return 0, 0, errkind.Wrap(errkind.Database, err)
	}
	return id, n, nil
}

func scanLinearPkBucket(b *bolt.Bucket, match func(types.LinearPkMeta) bool) (uint32, int, error) {
	var found uint32
	var count int
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var m types.LinearPkMeta
		if err := json.Unmarshal(v, &m); err != nil {
			return 0, 0, err
		}
		if match(m) {
			count++
			found = keyID(k)
		}
	}
	return found, count, nil
}

// LinearPkSamples reads back the tabulated (k, P) rows for pk.
func (s *BoltStore) LinearPkSamples(pk token.LinearPk) ([]types.LinearPkSample, error) {
	var samples []types.LinearPkSample
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketLinearPkData), idKey(pk.ID()), &samples)
		return err
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Database, err)
	}
	return samples, nil
}

// paramsTokenize implements exact-match tokenization for the small,
// explicitly-enumerated parameter blocks: equality is exact field
// comparison, not a tolerance.
func paramsTokenize[P comparable](db *bolt.DB, tx *txGuard, bucket []byte, p P) (uint32, error) {
	match := func(o P) bool { return o == p }

	found, n, err := scanParams(db, bucket, match)
	if err != nil {
		return 0, err
	}
	if n > 1 {
		return 0, errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored parameter blocks in %s match exactly", n, bucket))
	}
	if found != 0 {
		return found, nil
	}

	if err := tx.acquire(); err != nil {
		return 0, err
	}
	defer tx.release()

	var id uint32
	err = db.Update(func(btx *bolt.Tx) error {
		b := btx.Bucket(bucket)
		existing, n, err := scanParamsBucket[P](b, match)
		if err != nil {
			return err
		}
		if n > 1 {
			return errkind.Wrap(errkind.Consistency, fmt.Errorf("%d stored parameter blocks in %s match exactly", n, bucket))
		}
		if existing != 0 {
			id = existing
			return nil
		}
		newID, err := nextID(b)
		if err != nil {
			return err
		}
		if err := putJSON(b, idKey(newID), p); err != nil {
			return err
		}
		id = newID
		return nil
	})
	if err != nil {
		return 0, wrapDB(err)
	}
	return id, nil
}

func scanParams[P any](db *bolt.DB, bucket []byte, match func(P) bool) (uint32, int, error) {
	var id uint32
	var n int
	err := db.View(func(tx *bolt.Tx) error {
		var scanErr error
		id, n, scanErr = scanParamsBucket[P](tx.Bucket(bucket), match)
		return scanErr
	})
	if err != nil {
		return 0, 0, errkind.Wrap(errkind.Database, err)
	}
	return id, n, nil
}

func scanParamsBucket[P any](b *bolt.Bucket, match func(P) bool) (uint32, int, error) {
	var found uint32
	var count int
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var p P
		if err := json.Unmarshal(v, &p); err != nil {
			return 0, 0, err
		}
		if match(p) {
			count++
			found = keyID(k)
		}
	}
	return found, count, nil
}

func paramsByToken[P any](db *bolt.DB, bucket []byte, id uint32) (P, error) {
	var p P
	err := db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucket), idKey(id), &p)
		return err
	})
	if err != nil {
		return p, errkind.Wrap(errkind.Database, err)
	}
	return p, nil
}

// TokenizeGrowthParams tokenizes a growth-ODE tolerance/mode block.
func (s *BoltStore) TokenizeGrowthParams(p types.GrowthParams) (token.GrowthParams, error) {
	id, err := paramsTokenize(s.db, &s.tx, bucketGrowthParams, p)
	if err != nil {
		return token.GrowthParams{}, err
	}
	return token.New[token.GrowthParamsKind](id), nil
}

// TokenizeLoopParams tokenizes a loop-kernel integration tolerance block.
func (s *BoltStore) TokenizeLoopParams(p types.LoopParams) (token.LoopParams, error) {
	id, err := paramsTokenize(s.db, &s.tx, bucketLoopParams, p)
	if err != nil {
		return token.LoopParams{}, err
	}
	return token.New[token.LoopParamsKind](id), nil
}

// TokenizeMatsubaraXYParams tokenizes an IR-resummation coefficient
// tolerance block.
func (s *BoltStore) TokenizeMatsubaraXYParams(p types.MatsubaraXYParams) (token.MatsubaraXYParams, error) {
	id, err := paramsTokenize(s.db, &s.tx, bucketXYParams, p)
	if err != nil {
		return token.MatsubaraXYParams{}, err
	}
	return token.New[token.MatsubaraXYParamsKind](id), nil
}

// TokenizeFilterParams tokenizes an Eisenstein-Hu filtering parameter block.
func (s *BoltStore) TokenizeFilterParams(p types.FilterParams) (token.FilterParams, error) {
	id, err := paramsTokenize(s.db, &s.tx, bucketFilterParams, p)
	if err != nil {
		return token.FilterParams{}, err
	}
	return token.New[token.FilterParamsKind](id), nil
}

func (s *BoltStore) GrowthParamsByToken(p token.GrowthParams) (types.GrowthParams, error) {
	return paramsByToken[types.GrowthParams](s.db, bucketGrowthParams, p.ID())
}

func (s *BoltStore) LoopParamsByToken(p token.LoopParams) (types.LoopParams, error) {
	return paramsByToken[types.LoopParams](s.db, bucketLoopParams, p.ID())
}

func (s *BoltStore) MatsubaraXYParamsByToken(p token.MatsubaraXYParams) (types.MatsubaraXYParams, error) {
	return paramsByToken[types.MatsubaraXYParams](s.db, bucketXYParams, p.ID())
}

func (s *BoltStore) FilterParamsByToken(p token.FilterParams) (types.FilterParams, error) {
	return paramsByToken[types.FilterParams](s.db, bucketFilterParams, p.ID())
}

func (s *BoltStore) RedshiftByToken(z token.Redshift) (float64, error) {
	var v float64
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketRedshifts), idKey(z.ID()), &v)
		return err
	})
	if err != nil {
		return 0, errkind.Wrap(errkind.Database, err)
	}
	return v, nil
}
