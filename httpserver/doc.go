/*
Package httpserver implements the HTTP server for the randomness ledger
service.

It exposes the protocol operations over two surfaces sharing one listener:

1. Public API - enclave registration, signed draw submission and object reads

2. Admin API - capability-gated config creation and measurement updates

# Public API Features

  - Enclave registration with attestation document validation
  - Signed draw submission with range and signature verification
  - Record, enclave and config lookups by object id
  - Owner-only record destruction
  - Health and diagnostics endpoints

# Admin API Features

  - Config creation pinning a trust anchor and expected measurements
  - Measurement rollout for new enclave images
  - Gated by ledger capability ownership, not handler-level ACLs

# Error Model

Handlers reject bad encodings with 400 before touching the ledger. Ledger
and validation failures map onto status codes by error identity: missing
objects are 404, ownership failures are 403, and semantically invalid input
that parsed correctly (failed attestation, out-of-range draws, bad
signatures, schema mismatches) is 422. Bodies are plain text produced from
the wrapped error chain.

# Operational Endpoints

The server follows the usual liveness/readiness split. /livez always
answers, /readyz reflects the drain state toggled through /drain and
/undrain, and Prometheus metrics are served from a separate listener so
scrapes never compete with API traffic. Profiling via /debug is opt-in.

# Usage Example

	handler := httpserver.NewHandler(led, validator, dirID, archive, log)
	admin := httpserver.NewAdminHandler(led, dirID, capID, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:  ":8080",
		MetricsAddr: ":8090",
		Log:         log,
	}, handler, admin)
	if err != nil {
		log.Error("Failed to create server", "err", err)
		os.Exit(1)
	}

	srv.RunInBackground()
	// ... wait for termination signal ...
	srv.Shutdown()
*/
package httpserver
