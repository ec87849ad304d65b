package api

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// AccountHeader carries the caller's account address on ledger API requests.
// The address is supplied by the wallet or gateway fronting the service; the
// ledger only records it as the owner of created objects.
const AccountHeader = "X-Account-Address"

// ErrNonIntegerNumber is returned when a JSON field bound to a U64 holds
// anything but an unsigned decimal integer.
var ErrNonIntegerNumber = errors.New("json value is not an unsigned integer")

// U64 is a uint64 that rejects non-integer JSON numerics at decode time.
// Floats, exponents, quoted strings and negative values all fail instead of
// being silently truncated or coerced.
type U64 uint64

// UnmarshalJSON implements strict decoding for unsigned 64-bit values.
func (u *U64) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "" || s == "null" {
		return fmt.Errorf("%w: empty value", ErrNonIntegerNumber)
	}
	if bytes.ContainsAny([]byte(s), `."eE+`) {
		return fmt.Errorf("%w: %s", ErrNonIntegerNumber, s)
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNonIntegerNumber, s)
	}
	*u = U64(v)
	return nil
}

// RequestError wraps a non-success HTTP response from a service client,
// preserving the status code for retry decisions.
type RequestError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %v", e.StatusCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error { return e.Err }

// ProcessDataPayload is the client-chosen inclusive range for one draw.
type ProcessDataPayload struct {
	Min U64 `json:"min"`
	Max U64 `json:"max"`
}

// ProcessDataRequest is the enclave service's draw request body.
type ProcessDataRequest struct {
	Payload ProcessDataPayload `json:"payload"`
}

// RandomData mirrors the signed payload fields in their canonical order.
type RandomData struct {
	RandomNumber U64 `json:"random_number"`
	Min          U64 `json:"min"`
	Max          U64 `json:"max"`
}

// SignedPayload is the portion of an enclave response covered by the
// signature, together with the timestamp that entered the signed bytes.
type SignedPayload struct {
	Data        RandomData `json:"data"`
	TimestampMS U64        `json:"timestamp_ms"`
}

// ProcessDataResponse is the enclave service's draw response body. Signature
// is the hex-encoded Ed25519 signature over the canonical intent bytes of
// Response.
type ProcessDataResponse struct {
	Response  SignedPayload `json:"response"`
	Signature string        `json:"signature"`
}

// AttestationResponse carries the raw COSE_Sign1 attestation document in hex.
type AttestationResponse struct {
	Attestation string `json:"attestation"`
}

// HealthResponse is the enclave service's health probe body.
type HealthResponse struct {
	Status string `json:"status"`
}

// RegisterEnclaveRequest asks the ledger service to validate an attestation
// document against a config and mint an enclave record.
type RegisterEnclaveRequest struct {
	ConfigID            string `json:"config_id"`
	AttestationDocument string `json:"attestation_document"`
}

// EnclaveRecordResponse is the JSON rendering of a registered enclave.
type EnclaveRecordResponse struct {
	EnclaveID    string    `json:"enclave_id"`
	ConfigID     string    `json:"config_id"`
	Schema       string    `json:"schema"`
	PublicKey    string    `json:"public_key"`
	Operator     string    `json:"operator"`
	RegisteredAt time.Time `json:"registered_at"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
}

// SubmitRandomRequest relays a signed enclave response for verification and
// minting.
type SubmitRandomRequest struct {
	EnclaveID    string `json:"enclave_id"`
	RandomNumber U64    `json:"random_number"`
	Min          U64    `json:"min"`
	Max          U64    `json:"max"`
	TimestampMS  U64    `json:"timestamp_ms"`
	Signature    string `json:"signature"`
}

// RandomRecordResponse is the JSON rendering of a minted record.
type RandomRecordResponse struct {
	RecordID     string `json:"record_id"`
	RandomNumber U64    `json:"random_number"`
	Min          U64    `json:"min"`
	Max          U64    `json:"max"`
	TimestampMS  U64    `json:"timestamp_ms"`
	Owner        string `json:"owner"`
}

// MeasurementsPayload carries the three expected register values in hex.
type MeasurementsPayload struct {
	PCR0 string `json:"pcr0"`
	PCR1 string `json:"pcr1"`
	PCR2 string `json:"pcr2"`
}

// CreateConfigRequest creates a new enclave config. The trust anchor is the
// PEM-encoded root certificate attestation chains must terminate in.
type CreateConfigRequest struct {
	Label          string              `json:"label"`
	TrustAnchorPEM string              `json:"trust_anchor_pem"`
	Measurements   MeasurementsPayload `json:"measurements"`
}

// UpdateMeasurementsRequest replaces a config's expected measurement set.
type UpdateMeasurementsRequest struct {
	Measurements MeasurementsPayload `json:"measurements"`
}

// ConfigResponse is the JSON rendering of an enclave config.
type ConfigResponse struct {
	ConfigID          string              `json:"config_id"`
	Label             string              `json:"label"`
	Schema            string              `json:"schema"`
	AnchorFingerprint string              `json:"anchor_fingerprint"`
	Measurements      MeasurementsPayload `json:"measurements"`
	CreatedAt         time.Time           `json:"created_at"`
}
