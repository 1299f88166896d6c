package units

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// dimension is the constraint satisfied by every phantom marker type.
// It exists only so Quantity's type parameter can't be instantiated
// with an unrelated type by accident.
type dimension interface {
	isDimension()
}

// Energy is the dimension of a physical wavenumber or mass scale.
type Energy struct{}

func (Energy) isDimension() {}

// InverseEnergy is the reciprocal dimension (lengths).
type InverseEnergy struct{}

func (InverseEnergy) isDimension() {}

// Dimensionless tags a plain number that still wants tolerance-aware
// comparison helpers (e.g. a growth factor or a redshift).
type Dimensionless struct{}

func (Dimensionless) isDimension() {}

// Quantity is a real number tagged by dimension D. Conversion to a bare
// float64 is always explicit, via Value; there is no implicit
// conversion.
type Quantity[D dimension] struct {
	v float64
}

// New constructs a Quantity from a bare float64 in the quantity's
// native unit system.
func New[D dimension](v float64) Quantity[D] {
	return Quantity[D]{v: v}
}

// Value strips the dimension tag, returning the underlying real.
func (q Quantity[D]) Value() float64 { return q.v }

// Add is only defined between two quantities of matching dimension.
func (q Quantity[D]) Add(o Quantity[D]) Quantity[D] {
	return Quantity[D]{v: q.v + o.v}
}

// Sub is only defined between two quantities of matching dimension.
func (q Quantity[D]) Sub(o Quantity[D]) Quantity[D] {
	return Quantity[D]{v: q.v - o.v}
}

// Scale multiplies by a plain (dimensionless) real, preserving D.
func (q Quantity[D]) Scale(f float64) Quantity[D] {
	return Quantity[D]{v: q.v * f}
}

// Less compares two quantities of matching dimension.
func (q Quantity[D]) Less(o Quantity[D]) bool { return q.v < o.v }

// MarshalJSON and MarshalBinary exist because v is unexported: both
// encoding/json (pkg/storage's row format) and the msgpack codec
// (pkg/wire's control channel) only see a type's exported fields or
// its marshal hooks, so without these every Quantity silently encodes
// as an empty value on both paths.

func (q Quantity[D]) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(q.v, 'g', -1, 64)), nil
}

func (q *Quantity[D]) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("units: unmarshal quantity: %w", err)
	}
	q.v = v
	return nil
}

func (q Quantity[D]) MarshalBinary() ([]byte, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(q.v))
	return buf[:], nil
}

func (q *Quantity[D]) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("units: unmarshal quantity: want 8 bytes, got %d", len(data))
	}
	q.v = math.Float64frombits(binary.LittleEndian.Uint64(data))
	return nil
}

// MulEnergyInverseEnergy multiplies an Energy by an InverseEnergy,
// producing a Dimensionless result (e.g. k * r for a dimensionless
// phase). This is the only cross-dimension combinator defined for this
// pair; no generic "Quantity[A] * Quantity[B]" exists.
func MulEnergyInverseEnergy(a Quantity[Energy], b Quantity[InverseEnergy]) Quantity[Dimensionless] {
	return Quantity[Dimensionless]{v: a.v * b.v}
}

// InvertEnergy converts an Energy into its InverseEnergy reciprocal.
func InvertEnergy(a Quantity[Energy]) Quantity[InverseEnergy] {
	return Quantity[InverseEnergy]{v: 1.0 / a.v}
}

// InvertInverseEnergy converts back.
func InvertInverseEnergy(a Quantity[InverseEnergy]) Quantity[Energy] {
	return Quantity[Energy]{v: 1.0 / a.v}
}

// RelativeDifference returns |a-b| / |a| (or the absolute difference
// |a-b| when a is zero), the ratio used throughout the tokenizer's
// tolerance comparisons. Callers decide whether relative
// or absolute comparison applies (see pkg/storage's tolerance table).
func RelativeDifference[D dimension](a, b Quantity[D]) float64 {
	if a.v == 0 {
		return AbsoluteDifference(a, b)
	}
	diff := a.v - b.v
	if diff < 0 {
		diff = -diff
	}
	return diff / absf(a.v)
}

// AbsoluteDifference returns |a-b|.
func AbsoluteDifference[D dimension](a, b Quantity[D]) float64 {
	diff := a.v - b.v
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
