package token

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// kind is the constraint satisfied by every token marker type.
type kind interface {
	isKind()
}

// Token is an opaque 32-bit identifier for a row of kind K. Two tokens
// compare equal iff their underlying identifiers are equal; there is
// no ordering guarantee beyond "assigned monotonically by insertion
// order" (see pkg/storage).
type Token[K kind] struct {
	id uint32
}

// Zero is the not-yet-assigned token value. No real row ever has id 0;
// pkg/storage's id sequence starts at 1.
func Zero[K kind]() Token[K] { return Token[K]{} }

// New wraps a raw identifier. Only pkg/storage should call this;
// everyone else receives tokens back from Tokenize/Store.
func New[K kind](id uint32) Token[K] { return Token[K]{id: id} }

// ID returns the raw identifier, e.g. for use as a bucket key.
func (t Token[K]) ID() uint32 { return t.id }

// Valid reports whether this token refers to an assigned row.
func (t Token[K]) Valid() bool { return t.id != 0 }

func (t Token[K]) String() string { return fmt.Sprintf("#%d", t.id) }

// MarshalJSON and MarshalBinary exist because id is unexported: like
// units.Quantity, a Token falls back to these hooks on both the
// pkg/storage JSON row format and the pkg/wire msgpack codec, which
// would otherwise see no exported fields and silently encode every
// token as the zero value.

func (t Token[K]) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(t.id), 10)), nil
}

func (t *Token[K]) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return fmt.Errorf("token: unmarshal: %w", err)
	}
	t.id = uint32(v)
	return nil
}

func (t Token[K]) MarshalBinary() ([]byte, error) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], t.id)
	return buf[:], nil
}

func (t *Token[K]) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("token: unmarshal: want 4 bytes, got %d", len(data))
	}
	t.id = binary.LittleEndian.Uint32(data)
	return nil
}

// Marker kinds. Each is a distinct empty struct so Token[ModelKind] and
// Token[RedshiftKind] are different, incompatible Go types even though
// both are backed by the same uint32.

type ModelKind struct{}

func (ModelKind) isKind() {}

type RedshiftKind struct{}

func (RedshiftKind) isKind() {}

// WavenumberGenericKind tags a plain wavenumber sample (role: generic).
type WavenumberGenericKind struct{}

func (WavenumberGenericKind) isKind() {}

// WavenumberUVKind tags a wavenumber used as a UV cutoff.
type WavenumberUVKind struct{}

func (WavenumberUVKind) isKind() {}

// WavenumberIRKind tags a wavenumber used as an IR cutoff.
type WavenumberIRKind struct{}

func (WavenumberIRKind) isKind() {}

// WavenumberIRResumKind tags a wavenumber used as an IR-resummation scale.
type WavenumberIRResumKind struct{}

func (WavenumberIRResumKind) isKind() {}

type LinearPkKind struct{}

func (LinearPkKind) isKind() {}

// Parameter-block subsystems, one token kind each.

type GrowthParamsKind struct{}

func (GrowthParamsKind) isKind() {}

type LoopParamsKind struct{}

func (LoopParamsKind) isKind() {}

type MatsubaraXYParamsKind struct{}

func (MatsubaraXYParamsKind) isKind() {}

type FilterParamsKind struct{}

func (FilterParamsKind) isKind() {}

// Convenience aliases used throughout pkg/types and pkg/storage.

type (
	Model             = Token[ModelKind]
	Redshift          = Token[RedshiftKind]
	Wavenumber        = Token[WavenumberGenericKind]
	UVCutoff          = Token[WavenumberUVKind]
	IRCutoff          = Token[WavenumberIRKind]
	IRResum           = Token[WavenumberIRResumKind]
	LinearPk          = Token[LinearPkKind]
	GrowthParams      = Token[GrowthParamsKind]
	LoopParams        = Token[LoopParamsKind]
	MatsubaraXYParams = Token[MatsubaraXYParamsKind]
	FilterParams      = Token[FilterParamsKind]
)
