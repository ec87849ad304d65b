/*
Package api defines the wire types shared by the randomness services and
their clients.

Two HTTP surfaces are covered:

1. Enclave service - draw requests, attestation fetches, health probes
2. Ledger service - enclave registration, submission, record and config reads

The clients subpackage provides HTTP client implementations for both
surfaces; the handler serving the ledger surface lives in httpserver.

# Boundary Conventions

All byte values (signatures, attestation documents, measurement registers,
addresses, object ids) cross the wire as hex strings, optionally
0x-prefixed, with an even number of digits. Malformed hex is rejected at
the boundary with interfaces.ErrInvalidHex and never truncated or padded.

All 64-bit protocol values (random numbers, bounds, timestamps) use the U64
type, which rejects floats, exponents, quoted strings and negative values
instead of coercing them. A non-integer numeric fails the request before
any ledger call is made.

The caller's account address is carried in the X-Account-Address header
(AccountHeader). Account management and signing are the wallet's concern;
the services only record the address as object owner.

# Error Model

Handlers return plain-text error bodies with conventional status codes:
400 for malformed input, 404 for unknown objects, 403 for capability and
ownership failures, 422 for attestation and domain rejections, 500
otherwise. Clients wrap non-success responses in RequestError, preserving
the status code for retry decisions.
*/
package api
