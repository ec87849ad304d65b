package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/tee-randomness-service/api"
	"github.com/ruteri/tee-randomness-service/interfaces"
)

// DefaultClientTimeout bounds every request issued by the clients in this
// package unless the caller supplies its own timeout.
const DefaultClientTimeout = 30 * time.Second

// EnclaveClient communicates with the enclave service HTTP interface. The
// base URL points either at a plain TCP listener or at a local proxy
// forwarding to the enclave's vsock port.
type EnclaveClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewEnclaveClient creates a client for the enclave service at the given
// base URL. An optional timeout overrides DefaultClientTimeout.
func NewEnclaveClient(baseURL string, timeout ...time.Duration) *EnclaveClient {
	clientTimeout := DefaultClientTimeout
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &EnclaveClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// ProcessData asks the enclave to draw a random number in the inclusive
// range [min, max] and sign the result. The returned signature is checked to
// be well-formed hex before the response is handed back.
func (c *EnclaveClient) ProcessData(min, max uint64) (*api.ProcessDataResponse, error) {
	reqBody, err := json.Marshal(api.ProcessDataRequest{
		Payload: api.ProcessDataPayload{Min: api.U64(min), Max: api.U64(max)},
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal process_data request: %w", err)
	}

	body, err := c.do(http.MethodPost, "/process_data", reqBody)
	if err != nil {
		return nil, err
	}

	var drawResp api.ProcessDataResponse
	if err := json.Unmarshal(body, &drawResp); err != nil {
		return nil, fmt.Errorf("could not parse process_data response: %w", err)
	}

	if _, err := interfaces.DecodeHex(drawResp.Signature); err != nil {
		return nil, fmt.Errorf("enclave returned malformed signature: %w", err)
	}

	return &drawResp, nil
}

// GetAttestation fetches the enclave's current attestation document. The
// document is returned as raw COSE_Sign1 bytes, decoded from the service's
// hex rendering.
func (c *EnclaveClient) GetAttestation() ([]byte, error) {
	body, err := c.do(http.MethodGet, "/get_attestation", nil)
	if err != nil {
		return nil, err
	}

	var attResp api.AttestationResponse
	if err := json.Unmarshal(body, &attResp); err != nil {
		return nil, fmt.Errorf("could not parse get_attestation response: %w", err)
	}

	doc, err := interfaces.DecodeHex(attResp.Attestation)
	if err != nil {
		return nil, fmt.Errorf("enclave returned malformed attestation: %w", err)
	}

	return doc, nil
}

// HealthCheck probes the enclave's health endpoint.
func (c *EnclaveClient) HealthCheck() error {
	_, err := c.do(http.MethodGet, "/health_check", nil)
	return err
}

func (c *EnclaveClient) do(method, path string, reqBody []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request enclave service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read enclave response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &api.RequestError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s failed: %s", method, path, strings.TrimSpace(string(body))),
		}
	}

	return body, nil
}
