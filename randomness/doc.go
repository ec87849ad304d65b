// Package randomness mints proof-backed records of enclave-produced random
// numbers.
//
// SubmitRandom is the module's single issuance path. It accepts the four
// values a client relays from an enclave response (random number, bounds,
// timestamp) together with the enclave's signature, and runs a strictly
// ordered state machine: range check, then signature verification against
// the registered enclave key, then mint. The order is observable: an
// out-of-range response fails with ErrInvalidRange even when its signature
// is valid.
//
// There is no replay protection: submitting the same signed response twice
// mints two independent records carrying the same proof. Consumers that
// need uniqueness dedupe on signature bytes.
package randomness
