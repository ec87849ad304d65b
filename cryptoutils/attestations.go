package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/hf/nsm"
	"github.com/hf/nsm/request"
	"github.com/ruteri/tee-randomness-service/interfaces"
)

// AttestationRequest carries the caller-chosen fields embedded in a document.
// PublicKey is the protocol signing key being bound to the enclave identity.
type AttestationRequest struct {
	PublicKey []byte
	UserData  []byte
	Nonce     []byte
}

// AttestationProvider produces raw attestation documents binding the
// enclave's ephemeral public key to its measured identity.
type AttestationProvider interface {
	AttestationType() AttestationType
	Attest(req AttestationRequest) ([]byte, error)
}

// NSMAttestationProvider requests documents from the Nitro Security Module
// device. Only usable inside an enclave.
type NSMAttestationProvider struct{}

func (NSMAttestationProvider) AttestationType() AttestationType { return NitroAttestation }

func (NSMAttestationProvider) Attest(req AttestationRequest) ([]byte, error) {
	sess, err := nsm.OpenDefaultSession()
	if err != nil {
		return nil, fmt.Errorf("opening NSM session: %w", err)
	}
	defer sess.Close()

	res, err := sess.Send(&request.Attestation{
		Nonce:     req.Nonce,
		UserData:  req.UserData,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("requesting NSM attestation: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("NSM device error: %v", res.Error)
	}
	if res.Attestation == nil || res.Attestation.Document == nil {
		return nil, errors.New("NSM response contains no attestation document")
	}

	return res.Attestation.Document, nil
}

// LocalAttestationProvider produces documents signed by a locally generated
// P-384 chain, claiming a fixed measurement set. It stands in for the
// platform during development and in tests; a validator only accepts its
// documents when explicitly configured with this provider's trust anchor.
type LocalAttestationProvider struct {
	measurements interfaces.MeasurementSet
	moduleID     string

	anchor  TrustAnchor
	leaf    *x509.Certificate
	leafKey *ecdsa.PrivateKey
}

// NewLocalAttestationProvider generates a fresh root and leaf and returns a
// provider claiming the given measurements.
func NewLocalAttestationProvider(measurements interfaces.MeasurementSet) (*LocalAttestationProvider, error) {
	caCert, caKey, err := NewAttestationCA("local attestation root", 10*365*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("generating local attestation root: %w", err)
	}

	leaf, leafKey, err := IssueAttestationLeaf(caCert, caKey, "local attestation leaf", 365*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("issuing local attestation leaf: %w", err)
	}

	return &LocalAttestationProvider{
		measurements: measurements,
		moduleID:     "local-enclave",
		anchor:       NewTrustAnchor(caCert),
		leaf:         leaf,
		leafKey:      leafKey,
	}, nil
}

func (p *LocalAttestationProvider) AttestationType() AttestationType { return LocalAttestation }

// TrustAnchor returns the root certificate validators must be configured with
// to accept this provider's documents.
func (p *LocalAttestationProvider) TrustAnchor() TrustAnchor { return p.anchor }

func (p *LocalAttestationProvider) Attest(req AttestationRequest) ([]byte, error) {
	doc := &Document{
		ModuleID:  p.moduleID,
		Digest:    "SHA384",
		Timestamp: uint64(time.Now().UnixMilli()),
		PCRs: map[uint][]byte{
			0: p.measurements.PCR0.Bytes(),
			1: p.measurements.PCR1.Bytes(),
			2: p.measurements.PCR2.Bytes(),
		},
		Certificate: p.leaf.Raw,
		CABundle:    [][]byte{p.anchor.Certificate().Raw},
		PublicKey:   req.PublicKey,
		UserData:    req.UserData,
		Nonce:       req.Nonce,
	}

	return EncodeDocument(doc, p.leafKey)
}
