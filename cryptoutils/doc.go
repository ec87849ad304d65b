// Package cryptoutils provides attestation document handling for the
// attested randomness system: parsing, validation and production of AWS Nitro
// style COSE_Sign1 documents.
//
// # Document Validation
//
// DocumentValidator.Validate runs the full check sequence the registry relies
// on before trusting an enclave key:
//
//  1. Parse the COSE_Sign1 envelope (tagged or untagged) and the CBOR document
//     payload, enforcing the SHA384/ES384 profile.
//  2. Verify the certificate chain terminates at the caller-provided trust
//     anchor, evaluating validity at the document's own timestamp.
//  3. Verify the document signature (ECDSA P-384 over the COSE Signature1
//     structure).
//  4. Compare measurement registers PCR0..PCR2 byte-for-byte against the
//     expected set.
//  5. Extract the embedded Ed25519 public key.
//
// Failures map onto a closed taxonomy; callers branch with errors.Is:
//
//	var (
//	    ErrMalformedDocument   = errors.New("malformed attestation document")
//	    ErrChainInvalid        = errors.New("attestation certificate chain invalid")
//	    ErrDocSignatureInvalid = errors.New("attestation document signature invalid")
//	    ErrMeasurementMismatch = errors.New("attestation measurement mismatch")
//	)
//
// MeasurementMismatchError additionally carries the failing register index and
// both values.
//
// # Trust Anchors
//
// TrustAnchor wraps the root certificate a chain must terminate at and exposes
// a SHA-256 fingerprint. Enclave configs pin the anchor by fingerprint;
// production deployments load the published platform root certificate from a
// PEM file, development setups use the local provider's generated root.
//
// # Attestation Providers
//
// AttestationProvider produces raw documents embedding the enclave's protocol
// public key:
//
//   - NSMAttestationProvider requests documents from the Nitro Security Module
//     device and only works inside an enclave.
//   - LocalAttestationProvider signs documents with a locally generated P-384
//     chain claiming a fixed measurement set, for development and tests.
//
// EncodeDocument is the shared producer used by the local provider and by
// tests that need structurally valid (or deliberately corrupted) documents.
package cryptoutils
