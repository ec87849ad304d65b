// Package interfaces defines the shared types and contracts for the attested
// randomness system. It provides the boundary vocabulary used by the enclave
// service, the ledger-side registry and the clients without implementation
// details.
package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidHex marks any hex boundary input that cannot be decoded exactly:
// odd length, stray characters, or bad digits. Inputs failing this way must be
// rejected before any network or ledger call is made.
var ErrInvalidHex = errors.New("invalid hex input")

// DecodeHex converts a boundary hex string into raw bytes. A 0x or 0X prefix
// is accepted and stripped; anything else non-hex, including an odd number of
// digits, is a hard error rather than a truncated value.
func DecodeHex(s string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of digits (%d)", ErrInvalidHex, len(clean))
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return raw, nil
}

// EncodeHex returns the canonical boundary form of raw bytes: lowercase hex,
// no prefix.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// Measurement is a single platform measurement register value, a SHA-384
// digest pinning one layer of the enclave's boot or code state.
type Measurement [48]byte

// MeasurementSize is the length in bytes of a measurement register value.
const MeasurementSize = 48

// NewMeasurementFromBytes creates a measurement from a raw byte slice.
func NewMeasurementFromBytes(b []byte) (Measurement, error) {
	if len(b) != MeasurementSize {
		return Measurement{}, fmt.Errorf("invalid measurement length: must be %d bytes, got %d", MeasurementSize, len(b))
	}

	var m Measurement
	copy(m[:], b)
	return m, nil
}

// NewMeasurementFromHex creates a measurement from its hex boundary form.
func NewMeasurementFromHex(s string) (Measurement, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return Measurement{}, err
	}
	return NewMeasurementFromBytes(raw)
}

// String returns the hex string representation of the measurement.
func (m Measurement) String() string {
	return EncodeHex(m[:])
}

// Bytes returns the raw 48-byte measurement value.
func (m Measurement) Bytes() []byte {
	return m[:]
}

// Equal compares two measurements for equality.
func (m Measurement) Equal(other Measurement) bool {
	return m == other
}

// MeasurementSet holds the three expected register values an enclave build is
// pinned to: platform/boot state (PCR0), kernel and boot ramdisk (PCR1), and
// application image (PCR2).
type MeasurementSet struct {
	PCR0 Measurement
	PCR1 Measurement
	PCR2 Measurement
}

// NewMeasurementSetFromHex builds a measurement set from the three hex-encoded
// register values in index order.
func NewMeasurementSetFromHex(pcr0, pcr1, pcr2 string) (MeasurementSet, error) {
	var ms MeasurementSet
	var err error
	if ms.PCR0, err = NewMeasurementFromHex(pcr0); err != nil {
		return MeasurementSet{}, fmt.Errorf("pcr0: %w", err)
	}
	if ms.PCR1, err = NewMeasurementFromHex(pcr1); err != nil {
		return MeasurementSet{}, fmt.Errorf("pcr1: %w", err)
	}
	if ms.PCR2, err = NewMeasurementFromHex(pcr2); err != nil {
		return MeasurementSet{}, fmt.Errorf("pcr2: %w", err)
	}
	return ms, nil
}

// Registers returns the expected values in register index order.
func (ms MeasurementSet) Registers() [3]Measurement {
	return [3]Measurement{ms.PCR0, ms.PCR1, ms.PCR2}
}

// Equal compares two measurement sets register by register.
func (ms MeasurementSet) Equal(other MeasurementSet) bool {
	return ms == other
}

// AccountAddress identifies a caller account on the ledger. Accounts are
// managed by an external wallet; the core only records ownership.
type AccountAddress [20]byte

// NewAccountAddressFromBytes creates an account address from a raw byte slice.
func NewAccountAddressFromBytes(b []byte) (AccountAddress, error) {
	if len(b) != 20 {
		return AccountAddress{}, errors.New("invalid account address length: must be 20 bytes")
	}

	var a AccountAddress
	copy(a[:], b)
	return a, nil
}

// NewAccountAddressFromHex creates an account address from its hex boundary form.
func NewAccountAddressFromHex(s string) (AccountAddress, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return AccountAddress{}, err
	}
	return NewAccountAddressFromBytes(raw)
}

// String returns the hex string representation of the account address.
func (a AccountAddress) String() string {
	return EncodeHex(a[:])
}

// Bytes returns the raw 20-byte address.
func (a AccountAddress) Bytes() []byte {
	return a[:]
}

// Equal compares two account addresses for equality.
func (a AccountAddress) Equal(other AccountAddress) bool {
	return a == other
}

// ObjectID identifies a single object held by the ledger: a config, an
// enclave record, a capability or an issuance record.
type ObjectID [32]byte

// NewObjectIDFromBytes creates an object id from a raw byte slice.
func NewObjectIDFromBytes(b []byte) (ObjectID, error) {
	if len(b) != 32 {
		return ObjectID{}, errors.New("invalid object id length: must be 32 bytes")
	}

	var id ObjectID
	copy(id[:], b)
	return id, nil
}

// NewObjectIDFromHex creates an object id from its hex boundary form.
func NewObjectIDFromHex(s string) (ObjectID, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return ObjectID{}, err
	}
	return NewObjectIDFromBytes(raw)
}

// String returns the hex string representation of the object id.
func (id ObjectID) String() string {
	return EncodeHex(id[:])
}

// Bytes returns the raw 32-byte id.
func (id ObjectID) Bytes() []byte {
	return id[:]
}

// Equal compares two object ids for equality.
func (id ObjectID) Equal(other ObjectID) bool {
	return id == other
}
