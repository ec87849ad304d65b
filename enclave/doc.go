// Package enclave implements the service that runs inside the trusted
// execution environment. It owns the Ed25519 signing key, draws uniform
// random numbers and serves the HTTP interface clients and the ledger
// service consume.
//
// Key features:
//
//   - Ephemeral signing key generated at startup, exported only through
//     attestation documents
//   - Uniform draws over any inclusive uint64 range, including the full
//     [0, MaxUint64] span
//   - Signatures over the canonical intent encoding, so ledger-side
//     verification recomputes the exact signed bytes
//   - Attestation document caching tuned to the platform's five minute
//     validity window
//   - Serving over TCP for development or vsock inside a Nitro enclave
//
// # Endpoints
//
// POST /process_data draws a number in the requested [min, max] range and
// returns it with the signing timestamp and a hex signature. GET
// /get_attestation returns the current attestation document binding the
// signing key. GET /health_check reports whether the service can produce
// attestations.
//
// # Registration flow
//
// The enclave never talks to the ledger itself. An operator fetches the
// attestation document, submits it to the ledger's register endpoint, and
// from then on any draw response can be relayed for minting. If the enclave
// restarts, a new key is generated and registration must be repeated.
package enclave
