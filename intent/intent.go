// Package intent implements the deterministic signing-byte codec shared by
// enclaves and the ledger-side verifier.
//
// A signed message is the concatenation of a one-byte scope, the message
// timestamp in milliseconds as a little-endian u64, and the BCS encoding of
// the payload struct. Both sides derive these bytes independently: the
// enclave before signing a response, the verifier before checking the
// signature. Any drift between the two encodings makes every signature
// invalid, so the layout here is fixed and versioned by scope only.
package intent

import (
	"encoding/binary"
	"fmt"

	"github.com/fardream/go-bcs/bcs"
)

// Scope is the first byte of every signed message and binds a signature to
// one message kind. A signature over one scope never validates under another.
type Scope uint8

// ScopeProcessData covers signed enclave responses to data requests. It is
// the only scope currently assigned.
const ScopeProcessData Scope = 0

// String returns a human-readable scope name for logs.
func (s Scope) String() string {
	switch s {
	case ScopeProcessData:
		return "ProcessData"
	default:
		return fmt.Sprintf("Scope(%d)", uint8(s))
	}
}

// Message pairs a payload with the scope and timestamp it was signed under.
// The payload type must be BCS-encodable: fixed-width integers, byte slices,
// and structs of those, with fields serialized in declaration order.
type Message[T any] struct {
	Scope       Scope
	TimestampMS uint64
	Payload     T
}

// NewProcessDataMessage wraps a payload for signing under ScopeProcessData.
func NewProcessDataMessage[T any](timestampMS uint64, payload T) Message[T] {
	return Message[T]{Scope: ScopeProcessData, TimestampMS: timestampMS, Payload: payload}
}

// Encode produces the exact byte sequence to sign or verify:
// scope (1 byte) || timestamp_ms (u64 LE) || BCS(payload).
func (m Message[T]) Encode() ([]byte, error) {
	payload, err := bcs.Marshal(&m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding intent payload: %w", err)
	}

	buf := make([]byte, 0, 9+len(payload))
	buf = append(buf, byte(m.Scope))
	buf = binary.LittleEndian.AppendUint64(buf, m.TimestampMS)
	return append(buf, payload...), nil
}
