package enclave

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/ruteri/tee-randomness-service/intent"
	"github.com/ruteri/tee-randomness-service/randomness"
)

// ErrInvalidBounds is returned when a draw request's min is not strictly
// below its max.
var ErrInvalidBounds = errors.New("min must be strictly below max")

// Signer holds the enclave's Ed25519 signing key and produces signed random
// draws. The public key leaves the process only inside attestation
// documents and must be registered on the ledger before responses verify.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh ephemeral signing key. The key exists only in
// enclave memory and is lost on restart, forcing re-registration.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewSignerFromSeed derives the signing key deterministically from a seed.
// Intended for development setups where the key must survive restarts;
// production enclaves use NewSigner.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	keySeed := make([]byte, ed25519.SeedSize)
	kdf := hkdf.New(sha256.New, seed, nil, []byte("randomness-signing-key"))
	if _, err := io.ReadFull(kdf, keySeed); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(keySeed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// PublicKey returns a copy of the signing public key.
func (s *Signer) PublicKey() []byte {
	pub := make([]byte, len(s.pub))
	copy(pub, s.pub)
	return pub
}

// SignedDraw is one random draw together with the timestamp and signature
// covering it.
type SignedDraw struct {
	Response    randomness.RandomResponse
	TimestampMS uint64
	Signature   []byte
}

// ProcessData draws a uniform random number in the inclusive range
// [min, max], stamps it with the current time and signs the canonical intent
// encoding of the response.
func (s *Signer) ProcessData(min, max uint64) (*SignedDraw, error) {
	if min >= max {
		return nil, fmt.Errorf("%w: got [%d, %d]", ErrInvalidBounds, min, max)
	}

	n, err := drawUniform(rand.Reader, min, max)
	if err != nil {
		return nil, fmt.Errorf("drawing random number: %w", err)
	}

	response := randomness.RandomResponse{RandomNumber: n, Min: min, Max: max}
	timestampMS := uint64(time.Now().UnixMilli())

	signed, err := intent.NewProcessDataMessage(timestampMS, response).Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}

	return &SignedDraw{
		Response:    response,
		TimestampMS: timestampMS,
		Signature:   ed25519.Sign(s.priv, signed),
	}, nil
}

// drawUniform returns a uniform value in [min, max] inclusive. The full
// uint64 range cannot be expressed as a big.Int span of max-min+1, so it is
// read directly.
func drawUniform(r io.Reader, min, max uint64) (uint64, error) {
	span := max - min
	if span == math.MaxUint64 {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(buf[:]), nil
	}

	n, err := rand.Int(r, new(big.Int).SetUint64(span+1))
	if err != nil {
		return 0, err
	}
	return min + n.Uint64(), nil
}
