package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ruteri/tee-randomness-service/interfaces"
)

// Attestation document validation failures. Every registration failure maps to
// exactly one of these; callers branch with errors.Is.
var (
	// ErrMalformedDocument is returned when the document structure cannot be
	// parsed or violates the expected profile (wrong digest, missing fields,
	// malformed certificates).
	ErrMalformedDocument = errors.New("malformed attestation document")

	// ErrChainInvalid is returned when the document's certificate chain does
	// not terminate at the configured trust anchor.
	ErrChainInvalid = errors.New("attestation certificate chain invalid")

	// ErrDocSignatureInvalid is returned when the document's own signature does
	// not verify against its leaf certificate.
	ErrDocSignatureInvalid = errors.New("attestation document signature invalid")

	// ErrMeasurementMismatch matches any MeasurementMismatchError.
	ErrMeasurementMismatch = errors.New("attestation measurement mismatch")
)

// MeasurementMismatchError reports the first measurement register differing
// from the expected set. Registration must reject a document whose
// measurements differ in even one byte.
type MeasurementMismatchError struct {
	Register int
	Want     interfaces.Measurement
	Got      interfaces.Measurement
}

func (e *MeasurementMismatchError) Error() string {
	return fmt.Sprintf("attestation measurement mismatch: register %d expected %s, got %s", e.Register, e.Want, e.Got)
}

// Is reports ErrMeasurementMismatch as a match so callers can test the class
// without inspecting the register index.
func (e *MeasurementMismatchError) Is(target error) bool {
	return target == ErrMeasurementMismatch
}

const (
	coseAlgES384   = -35
	coseSign1Tag   = 18
	coseSigLenP384 = 96
)

type coseSign1 struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

type coseHeaders struct {
	Alg int64 `cbor:"1,keyasint,omitempty"`
}

var rawEmptyMap = cbor.RawMessage{0xa0}

// ValidationResult is the outcome of a successful document validation: the
// verified protocol public key plus the parsed document and the leaf
// certificate validity window for the registry record.
type ValidationResult struct {
	PublicKey ed25519.PublicKey
	Document  *Document
	NotBefore time.Time
	NotAfter  time.Time
}

// DocumentValidator checks platform attestation documents against a trust
// anchor and an expected measurement set. It is the sole gate through which
// an operator-run enclave becomes a trusted signer.
type DocumentValidator struct{}

// Validate runs the full check sequence on a raw COSE_Sign1 document: parse,
// certificate chain to the anchor, document signature, byte-exact measurement
// comparison, and public key extraction. The returned error is one of the
// taxonomy above; on any failure no partial result is returned.
//
// Certificate validity is evaluated at the document's own timestamp so that
// validation of a given document is deterministic.
func (v *DocumentValidator) Validate(raw []byte, anchor TrustAnchor, expected interfaces.MeasurementSet) (*ValidationResult, error) {
	sign1, doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}

	leaf, intermediates, err := parseDocumentCertificates(doc)
	if err != nil {
		return nil, err
	}

	if err := verifyChain(leaf, intermediates, anchor, time.UnixMilli(int64(doc.Timestamp))); err != nil {
		return nil, err
	}

	if err := verifyCOSESignature(sign1, leaf); err != nil {
		return nil, err
	}

	if err := checkMeasurements(doc, expected); err != nil {
		return nil, err
	}

	if len(doc.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: embedded public key must be %d bytes, got %d", ErrMalformedDocument, ed25519.PublicKeySize, len(doc.PublicKey))
	}

	return &ValidationResult{
		PublicKey: ed25519.PublicKey(append([]byte(nil), doc.PublicKey...)),
		Document:  doc,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
	}, nil
}

func decodeDocument(raw []byte) (*coseSign1, *Document, error) {
	body := raw

	// The NSM device returns an untagged COSE_Sign1 array; other tooling wraps
	// it in CBOR tag 18. Accept both.
	var tagged cbor.RawTag
	if err := cbor.Unmarshal(raw, &tagged); err == nil && tagged.Number == coseSign1Tag {
		body = tagged.Content
	}

	var sign1 coseSign1
	if err := cbor.Unmarshal(body, &sign1); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if len(sign1.Payload) == 0 {
		return nil, nil, fmt.Errorf("%w: empty payload", ErrMalformedDocument)
	}

	var hdr coseHeaders
	if err := cbor.Unmarshal(sign1.Protected, &hdr); err != nil {
		return nil, nil, fmt.Errorf("%w: protected headers: %v", ErrMalformedDocument, err)
	}
	if hdr.Alg != coseAlgES384 {
		return nil, nil, fmt.Errorf("%w: unsupported signing algorithm %d", ErrMalformedDocument, hdr.Alg)
	}

	var doc Document
	if err := cbor.Unmarshal(sign1.Payload, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: document payload: %v", ErrMalformedDocument, err)
	}
	if err := checkDocumentShape(&doc); err != nil {
		return nil, nil, err
	}

	return &sign1, &doc, nil
}

func checkDocumentShape(doc *Document) error {
	if doc.ModuleID == "" {
		return fmt.Errorf("%w: missing module_id", ErrMalformedDocument)
	}
	if doc.Digest != "SHA384" {
		return fmt.Errorf("%w: unsupported digest %q", ErrMalformedDocument, doc.Digest)
	}
	if doc.Timestamp == 0 {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedDocument)
	}
	if len(doc.PCRs) == 0 {
		return fmt.Errorf("%w: missing pcrs", ErrMalformedDocument)
	}
	if len(doc.Certificate) == 0 {
		return fmt.Errorf("%w: missing certificate", ErrMalformedDocument)
	}
	if len(doc.CABundle) == 0 {
		return fmt.Errorf("%w: empty cabundle", ErrMalformedDocument)
	}
	return nil
}

func parseDocumentCertificates(doc *Document) (*x509.Certificate, *x509.CertPool, error) {
	leaf, err := x509.ParseCertificate(doc.Certificate)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: leaf certificate: %v", ErrMalformedDocument, err)
	}

	// cabundle[0] is the root the platform claims; trust comes from the
	// caller-provided anchor instead. The remaining entries are intermediates.
	intermediates := x509.NewCertPool()
	for i, der := range doc.CABundle[1:] {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: cabundle[%d]: %v", ErrMalformedDocument, i+1, err)
		}
		intermediates.AddCert(cert)
	}

	return leaf, intermediates, nil
}

func verifyChain(leaf *x509.Certificate, intermediates *x509.CertPool, anchor TrustAnchor, at time.Time) error {
	if anchor.cert == nil {
		return fmt.Errorf("%w: no trust anchor configured", ErrChainInvalid)
	}

	roots := x509.NewCertPool()
	roots.AddCert(anchor.cert)

	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainInvalid, err)
	}
	return nil
}

func verifyCOSESignature(sign1 *coseSign1, leaf *x509.Certificate) error {
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || pub.Curve != elliptic.P384() {
		return fmt.Errorf("%w: leaf certificate key is not ECDSA P-384", ErrMalformedDocument)
	}
	if len(sign1.Signature) != coseSigLenP384 {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", ErrDocSignatureInvalid, coseSigLenP384, len(sign1.Signature))
	}

	sigStruct, err := cbor.Marshal([]any{"Signature1", sign1.Protected, []byte{}, sign1.Payload})
	if err != nil {
		return fmt.Errorf("%w: building signature structure: %v", ErrDocSignatureInvalid, err)
	}

	digest := sha512.Sum384(sigStruct)
	r := new(big.Int).SetBytes(sign1.Signature[:48])
	s := new(big.Int).SetBytes(sign1.Signature[48:])
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return ErrDocSignatureInvalid
	}
	return nil
}

func checkMeasurements(doc *Document, expected interfaces.MeasurementSet) error {
	for i, want := range expected.Registers() {
		raw, ok := doc.PCRs[uint(i)]
		if !ok {
			return fmt.Errorf("%w: missing PCR%d", ErrMalformedDocument, i)
		}
		got, err := interfaces.NewMeasurementFromBytes(raw)
		if err != nil {
			return fmt.Errorf("%w: PCR%d: %v", ErrMalformedDocument, i, err)
		}
		if !want.Equal(got) {
			return &MeasurementMismatchError{Register: i, Want: want, Got: got}
		}
	}
	return nil
}

// EncodeDocument serializes doc as a signed COSE_Sign1 structure (ES384, CBOR
// tag 18). Real documents come from the platform; this is used by the local
// attestation provider and by tests.
func EncodeDocument(doc *Document, signingKey *ecdsa.PrivateKey) ([]byte, error) {
	payload, err := cbor.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document payload: %w", err)
	}

	protected, err := cbor.Marshal(coseHeaders{Alg: coseAlgES384})
	if err != nil {
		return nil, fmt.Errorf("encoding protected headers: %w", err)
	}

	sigStruct, err := cbor.Marshal([]any{"Signature1", protected, []byte{}, payload})
	if err != nil {
		return nil, fmt.Errorf("encoding signature structure: %w", err)
	}

	digest := sha512.Sum384(sigStruct)
	r, s, err := ecdsa.Sign(rand.Reader, signingKey, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing document: %w", err)
	}

	sig := make([]byte, coseSigLenP384)
	r.FillBytes(sig[:48])
	s.FillBytes(sig[48:])

	return cbor.Marshal(cbor.Tag{
		Number: coseSign1Tag,
		Content: coseSign1{
			Protected:   protected,
			Unprotected: rawEmptyMap,
			Payload:     payload,
			Signature:   sig,
		},
	})
}
