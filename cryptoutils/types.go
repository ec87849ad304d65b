package cryptoutils

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/ruteri/tee-randomness-service/interfaces"
)

// AttestationType identifies the producer of an attestation document.
type AttestationType struct {
	StringID string
}

var (
	// NitroAttestation marks documents produced by the AWS Nitro Security Module.
	NitroAttestation = AttestationType{StringID: "aws-nitro"}

	// LocalAttestation marks documents produced by a locally generated signing
	// chain, used for development and tests.
	LocalAttestation = AttestationType{StringID: "local"}
)

// AttestationTypeFromString resolves a provider selector as used in CLI flags.
func AttestationTypeFromString(str string) (AttestationType, error) {
	switch str {
	case NitroAttestation.StringID:
		return NitroAttestation, nil
	case LocalAttestation.StringID:
		return LocalAttestation, nil
	default:
		return AttestationType{}, errors.ErrUnsupported
	}
}

// Document is the decoded payload of a platform attestation document. Field
// names follow the platform's CBOR map keys. The raw signed form is what
// crosses boundaries; this struct only ever exists after parsing.
type Document struct {
	ModuleID    string          `cbor:"module_id" json:"module_id"`
	Digest      string          `cbor:"digest" json:"digest"`
	Timestamp   uint64          `cbor:"timestamp" json:"timestamp"`
	PCRs        map[uint][]byte `cbor:"pcrs" json:"pcrs"`
	Certificate []byte          `cbor:"certificate" json:"certificate"`
	CABundle    [][]byte        `cbor:"cabundle" json:"cabundle"`
	PublicKey   []byte          `cbor:"public_key" json:"public_key,omitempty"`
	UserData    []byte          `cbor:"user_data" json:"user_data,omitempty"`
	Nonce       []byte          `cbor:"nonce" json:"nonce,omitempty"`
}

// TrustAnchor pins the root certificate an attestation signing chain must
// terminate at. Configs record the anchor by fingerprint; validators hold the
// certificate itself.
type TrustAnchor struct {
	cert        *x509.Certificate
	fingerprint AnchorFingerprint
}

// NewTrustAnchor wraps an already parsed root certificate.
func NewTrustAnchor(cert *x509.Certificate) TrustAnchor {
	return TrustAnchor{cert: cert, fingerprint: sha256.Sum256(cert.Raw)}
}

// NewTrustAnchorFromPEM creates a trust anchor from a PEM-encoded CA
// certificate with validation.
func NewTrustAnchorFromPEM(data []byte) (TrustAnchor, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return TrustAnchor{}, errors.New("invalid trust anchor: not in PEM format or not a certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return TrustAnchor{}, fmt.Errorf("invalid trust anchor structure: %w", err)
	}

	if !cert.IsCA {
		return TrustAnchor{}, errors.New("trust anchor is not a CA certificate (IsCA flag not set)")
	}

	return NewTrustAnchor(cert), nil
}

// Certificate returns the anchor's root certificate.
func (a TrustAnchor) Certificate() *x509.Certificate {
	return a.cert
}

// Fingerprint returns the SHA-256 hash of the anchor certificate in DER form,
// the identity enclave configs are pinned to.
func (a TrustAnchor) Fingerprint() AnchorFingerprint {
	return a.fingerprint
}

// PEM returns the anchor certificate PEM-encoded.
func (a TrustAnchor) PEM() []byte {
	if a.cert == nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.cert.Raw})
}

// AnchorFingerprint is the SHA-256 hash identifying a trust anchor.
type AnchorFingerprint [32]byte

// NewAnchorFingerprintFromHex creates a fingerprint from its hex boundary form.
func NewAnchorFingerprintFromHex(s string) (AnchorFingerprint, error) {
	raw, err := interfaces.DecodeHex(s)
	if err != nil {
		return AnchorFingerprint{}, err
	}
	if len(raw) != 32 {
		return AnchorFingerprint{}, errors.New("invalid anchor fingerprint length: must be 32 bytes")
	}

	var fp AnchorFingerprint
	copy(fp[:], raw)
	return fp, nil
}

// String returns the hex string representation of the fingerprint.
func (fp AnchorFingerprint) String() string {
	return interfaces.EncodeHex(fp[:])
}

// Equal compares two fingerprints for equality.
func (fp AnchorFingerprint) Equal(other AnchorFingerprint) bool {
	return fp == other
}
