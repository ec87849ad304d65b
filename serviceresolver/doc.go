// Package serviceresolver discovers enclave service endpoints through DNS
// SRV records.
//
// Operators publish their enclave services under a well-known domain; a
// client resolves that domain's SRV records to find host:port candidates it
// can fetch attestations and signed draws from. Discovery carries no trust:
// every candidate endpoint still has to present an attestation document that
// validates against the on-ledger config before its responses mean anything.
package serviceresolver
