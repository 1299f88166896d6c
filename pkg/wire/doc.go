// Package wire implements the control channel between master and
// worker: integer-tagged variant messages carrying phase-specific
// payloads, serialized with MessagePack via
// hashicorp/go-msgpack/v2/codec so every payload crosses a real
// encode/decode boundary rather than being passed by reference.
//
// The transport itself is an in-memory, size-bounded channel pair per
// worker (Conn). Nothing above this package distinguishes that from a
// future subprocess-pipe or TCP transport. Both would satisfy the
// same Conn interface.
package wire
