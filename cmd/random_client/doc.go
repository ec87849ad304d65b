// Command random_client drives the attested randomness flow from the
// operator's side: discover an enclave service, register its attestation
// with the ledger, request signed draws and submit them for minting, and
// manage configs and minted records.
package main
