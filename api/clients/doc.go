// Package clients provides HTTP clients for the two service surfaces of the
// attested randomness system.
//
// EnclaveClient talks to a running enclave service. It requests signed
// random draws, fetches the current attestation document and probes the
// health endpoint. The base URL may point at a plain TCP listener or at a
// host-side proxy that forwards to the enclave's vsock port.
//
// LedgerClient talks to the ledger service as a fixed account. It registers
// enclaves from attestation documents, submits signed draws for minting,
// looks up configs, enclave records and random records, and performs the
// capability-gated admin operations (config creation and measurement
// updates). The account address rides on every request in the
// X-Account-Address header and becomes the owner of minted objects.
//
// Both clients treat any non-200 response as an *api.RequestError carrying
// the status code and the service's plain-text error body, so callers can
// distinguish rejected input (4xx) from service failures (5xx):
//
//	record, err := ledger.SubmitSigned(enclaveID, signed)
//	if err != nil {
//		var reqErr *api.RequestError
//		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnprocessableEntity {
//			// signature or range rejected, do not retry
//		}
//		return err
//	}
//
// Hex fields are validated locally where possible: a malformed signature in
// an enclave response or a corrupted attestation document fails in the
// client before any request reaches the ledger.
package clients
