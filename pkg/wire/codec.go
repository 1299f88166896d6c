package wire

import (
	"bytes"
	"fmt"

	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/hashicorp/go-msgpack/v2/codec"
)

var handle = &codec.MsgpackHandle{}

// Encode serializes v, an Envelope or a phase-specific payload
// struct, to MessagePack bytes.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, handle)
	if err := enc.Encode(v); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, fmt.Errorf("encode %T: %w", v, err))
	}
	return buf.Bytes(), nil
}

// Decode deserializes MessagePack bytes into v, which must be a
// pointer.
func Decode(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(data), handle)
	if err := dec.Decode(v); err != nil {
		return errkind.Wrap(errkind.Protocol, fmt.Errorf("decode into %T: %w", v, err))
	}
	return nil
}

// EncodeEnvelope serializes an Envelope for transport over a Conn.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	return Encode(e)
}

// DecodeEnvelope deserializes bytes produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	err := Decode(data, &e)
	return e, err
}
