package enclave

import (
	"crypto/ed25519"
	"crypto/rand"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-randomness-service/intent"
)

func TestProcessData_SignatureVerifies(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err)

	draw, err := signer.ProcessData(5, 10)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, draw.Response.RandomNumber, uint64(5))
	assert.LessOrEqual(t, draw.Response.RandomNumber, uint64(10))
	assert.Equal(t, uint64(5), draw.Response.Min)
	assert.Equal(t, uint64(10), draw.Response.Max)
	assert.NotZero(t, draw.TimestampMS)

	signed, err := intent.NewProcessDataMessage(draw.TimestampMS, draw.Response).Encode()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(signer.PublicKey(), signed, draw.Signature))
}

func TestProcessData_InvalidBounds(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err)

	for _, tc := range []struct {
		name     string
		min, max uint64
	}{
		{"min equals max", 5, 5},
		{"min above max", 10, 5},
		{"both zero", 0, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := signer.ProcessData(tc.min, tc.max)
			require.ErrorIs(t, err, ErrInvalidBounds)
		})
	}
}

func TestProcessData_FullRange(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err)

	draw, err := signer.ProcessData(0, math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), draw.Response.Min)
	assert.Equal(t, uint64(math.MaxUint64), draw.Response.Max)
}

func TestNewSignerFromSeed(t *testing.T) {
	a, err := NewSignerFromSeed([]byte("seed one"))
	require.NoError(t, err)
	b, err := NewSignerFromSeed([]byte("seed one"))
	require.NoError(t, err)
	c, err := NewSignerFromSeed([]byte("seed two"))
	require.NoError(t, err)

	assert.Equal(t, a.PublicKey(), b.PublicKey())
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())

	draw, err := a.ProcessData(1, 2)
	require.NoError(t, err)

	signed, err := intent.NewProcessDataMessage(draw.TimestampMS, draw.Response).Encode()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(b.PublicKey(), signed, draw.Signature))
}

func TestDrawUniform(t *testing.T) {
	seen := map[uint64]bool{}
	for i := 0; i < 300; i++ {
		n, err := drawUniform(rand.Reader, 10, 12)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, uint64(10))
		require.LessOrEqual(t, n, uint64(12))
		seen[n] = true
	}

	assert.Len(t, seen, 3, "300 draws over three values should hit all of them")
}

func TestDrawUniform_DegenerateSpan(t *testing.T) {
	n, err := drawUniform(rand.Reader, 7, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
}

func TestDrawUniform_FullRange(t *testing.T) {
	for i := 0; i < 10; i++ {
		_, err := drawUniform(rand.Reader, 0, math.MaxUint64)
		require.NoError(t, err)
	}
}
