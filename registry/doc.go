// Package registry manages enclave identity on the ledger: which enclave
// builds are trusted, and which running instances have proven they are one
// of those builds.
//
// Trust is declared in configs and proven at registration:
//
// - A Config pins a trust anchor and three expected measurement registers
// - Registration validates an attestation document against a config
// - A successful registration mints an Enclave record with the verified key
// - The record's Verify method checks signatures over canonical intent bytes
//
// The package is the only path from an attestation document to a usable
// signing identity. Nothing else in the system inspects documents, and
// nothing verifies a signature except through an Enclave record, so an
// accepted signature always traces back to a validated document.
//
// # Capability Gating
//
// InstallModule claims the module's one-time witness and issues a ModuleCap.
// Creating a config and updating its measurements require presenting that
// capability; both fail with ledger.ErrNotOwner for anyone who does not own
// it. Registration and reads are open to everyone.
//
// # Schema Binding
//
// Config and Enclave carry the payload schema as a type parameter. An
// enclave registered for one payload type cannot verify bytes of another:
// the generic instantiation prevents it at compile time for in-process
// callers, and the recorded schema name rejects it with ErrSchemaMismatch
// when records are looked up by id across the HTTP boundary.
//
// # Usage Example
//
//	// Claim the witness and create a config (capability holder only).
//	witness, dir, err := registry.InstallModule(led, admin)
//	cfg, err := registry.CreateConfig[randomness.RandomResponse](
//		led, dir.ObjectID(), witness.ObjectID(), admin,
//		"randomness v1", anchor, measurements)
//
//	// Register an enclave from its raw attestation document (anyone).
//	record, err := registry.Register[randomness.RandomResponse](
//		led, validator, cfg.ObjectID(), rawDocument, operator)
//
//	// Verify a signed response.
//	ok := record.Verify(intent.ScopeProcessData, timestampMS, payload, sig)
package registry
