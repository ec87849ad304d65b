package intent

import (
	"math"
	"testing"

	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type drawPayload struct {
	RandomNumber uint64
	Min          uint64
	Max          uint64
}

// TestMessageEncode_Golden tests the codec against a fixed reference vector.
// Both signer and verifier depend on this exact layout, so the vector is
// spelled out byte for byte.
func TestMessageEncode_Golden(t *testing.T) {
	msg := NewProcessDataMessage(1744038900000, drawPayload{
		RandomNumber: 42,
		Min:          1,
		Max:          100,
	})

	encoded, err := msg.Encode()
	require.NoError(t, err)

	expected, err := interfaces.DecodeHex(
		"0020b1d110960100002a0000000000000001000000000000006400000000000000")
	require.NoError(t, err)
	assert.Equal(t, expected, encoded)
	assert.Len(t, encoded, 33)
}

// TestMessageEncode_Layout tests the position and endianness of each field.
func TestMessageEncode_Layout(t *testing.T) {
	msg := NewProcessDataMessage(1700000000000, drawPayload{
		RandomNumber: 7,
		Min:          0,
		Max:          10,
	})

	encoded, err := msg.Encode()
	require.NoError(t, err)
	require.Len(t, encoded, 33)

	// Scope byte first.
	assert.Equal(t, byte(ScopeProcessData), encoded[0])

	// Timestamp as little-endian u64.
	assert.Equal(t, []byte{0x00, 0x68, 0xe5, 0xcf, 0x8b, 0x01, 0x00, 0x00}, encoded[1:9])

	// Payload fields in declaration order, each little-endian u64.
	assert.Equal(t, byte(7), encoded[9])
	assert.Equal(t, byte(0), encoded[17])
	assert.Equal(t, byte(10), encoded[25])
}

// TestMessageEncode_TimestampBounds tests the extreme timestamp values.
func TestMessageEncode_TimestampBounds(t *testing.T) {
	zero, err := NewProcessDataMessage(0, drawPayload{}).Encode()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), zero[1:9])

	max, err := NewProcessDataMessage(math.MaxUint64, drawPayload{}).Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, max[1:9])
}

// TestMessageEncode_EmptyPayload tests that an empty payload still yields the
// nine-byte scope and timestamp prefix.
func TestMessageEncode_EmptyPayload(t *testing.T) {
	encoded, err := Message[struct{}]{Scope: ScopeProcessData, TimestampMS: 5}.Encode()
	require.NoError(t, err)
	assert.Len(t, encoded, 9)
}

// TestMessageEncode_Deterministic tests that repeated encodings of the same
// message are identical.
func TestMessageEncode_Deterministic(t *testing.T) {
	msg := NewProcessDataMessage(123456789, drawPayload{RandomNumber: 1, Min: 1, Max: 1})

	first, err := msg.Encode()
	require.NoError(t, err)
	second, err := msg.Encode()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestScopeString tests log formatting for known and unknown scopes.
func TestScopeString(t *testing.T) {
	assert.Equal(t, "ProcessData", ScopeProcessData.String())
	assert.Equal(t, "Scope(9)", Scope(9).String())
}
