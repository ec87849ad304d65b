// Package interfaces defines core types and contracts for the attested
// randomness system, separating boundary definitions from implementations.
//
// The package provides the vocabulary shared by the enclave service, the
// ledger-side registry and minter, and the client tooling:
//
// # Boundary Codec
//
// All binary values (signatures, attestation documents, measurements,
// addresses, object ids) cross process boundaries as hex strings. DecodeHex
// accepts an optional 0x prefix and rejects odd-length or malformed input as
// a hard error; EncodeHex emits unprefixed lowercase hex. Fixed-size types
// build on the codec via their FromHex constructors.
//
// # Identity Types
//
//   - Measurement: one 48-byte platform measurement register value
//   - MeasurementSet: the PCR0/PCR1/PCR2 expectations an enclave build is pinned to
//   - AccountAddress: 20-byte ledger account of a caller
//   - ObjectID: 32-byte identifier of a ledger object
//   - ContentID: 32-byte SHA-256 hash for content-addressed archive storage
//
// # Storage Interfaces
//
// StorageBackend provides content-addressed archive storage for minted
// issuance records and config snapshots across multiple backend types (file,
// S3, IPFS, Vault). StorageBackendFactory creates backends from URI strings
// and aggregates them for redundant storage.
//
// Implementations live in their own packages (storage, registry, ledger);
// this package stays free of implementation dependencies so every component
// can import it.
package interfaces
