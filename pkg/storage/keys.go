package storage

import (
	"encoding/binary"

	"github.com/cuemby/oneloop/pkg/token"
)

// keyBuilder accumulates a composite key
// from a sequence of token ids and small enum tags. Composite keys are
// plain big-endian concatenations, not meant to be human-readable,
// only stable and collision-free across the fixed set of fields each
// table key is built from.
type keyBuilder struct {
	buf []byte
}

func newKey() *keyBuilder {
	return &keyBuilder{buf: make([]byte, 0, 32)}
}

func (k *keyBuilder) id(tok interface{ ID() uint32 }) *keyBuilder {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], tok.ID())
	k.buf = append(k.buf, b[:]...)
	return k
}

func (k *keyBuilder) tag(t byte) *keyBuilder {
	k.buf = append(k.buf, t)
	return k
}

func (k *keyBuilder) str(s string) *keyBuilder {
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], uint16(len(s)))
	k.buf = append(k.buf, lb[:]...)
	k.buf = append(k.buf, s...)
	return k
}

func (k *keyBuilder) bytes() []byte {
	return k.buf
}

func filterKey(model token.Model, k token.Wavenumber, pk token.LinearPk, params token.FilterParams) []byte {
	return newKey().id(model).id(k).id(pk).id(params).bytes()
}

func growthKey(model token.Model, params token.GrowthParams, z token.Redshift) []byte {
	return newKey().id(model).id(params).id(z).bytes()
}

func matsubaraXYKey(model token.Model, params token.MatsubaraXYParams, pk token.LinearPk, irResum token.IRResum) []byte {
	return newKey().id(model).id(params).id(pk).id(irResum).bytes()
}

func loopKernelKey(model token.Model, params token.LoopParams, k token.Wavenumber, pk token.LinearPk, uv token.UVCutoff, ir token.IRCutoff, kind byte, label string) []byte {
	return newKey().id(model).id(params).id(k).id(pk).id(uv).id(ir).tag(kind).str(label).bytes()
}

func assembledPkKey(model token.Model, growthParams token.GrowthParams, loopParams token.LoopParams, pkInit token.LinearPk, pkFinal *token.LinearPk, k token.Wavenumber, z token.Redshift, uv token.UVCutoff, ir token.IRCutoff) []byte {
	kb := newKey().id(model).id(growthParams).id(loopParams).id(pkInit)
	if pkFinal != nil {
		kb.tag(1).id(*pkFinal)
	} else {
		kb.tag(0)
	}
	return kb.id(k).id(z).id(uv).id(ir).bytes()
}

func multipoleKey(model token.Model, k token.Wavenumber, z token.Redshift, uv token.UVCutoff, ir token.IRCutoff, irResum token.IRResum) []byte {
	return newKey().id(model).id(k).id(z).id(uv).id(ir).id(irResum).bytes()
}

func countertermKey(model token.Model, growthParams token.GrowthParams, k token.Wavenumber, z token.Redshift, uv token.UVCutoff, ir token.IRCutoff) []byte {
	return newKey().id(model).id(growthParams).id(k).id(z).id(uv).id(ir).bytes()
}
