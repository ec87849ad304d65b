// Command ledgerserver runs the ledger-resident randomness core behind an
// HTTP call surface. At startup it installs the enclave module (claiming the
// one-time witness and minting the admin capability), optionally creates the
// initial enclave config from flags, and then serves enclave registration,
// signed draw submission, record reads and destruction, plus the
// capability-gated config endpoints.
package main
