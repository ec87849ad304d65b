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

// LedgerClient communicates with the ledger service HTTP interface on behalf
// of a single account. The account address is attached to every request and
// becomes the owner of objects minted through this client.
type LedgerClient struct {
	baseURL    string
	account    interfaces.AccountAddress
	httpClient *http.Client
}

// NewLedgerClient creates a client for the ledger service at the given base
// URL, acting as the given account. An optional timeout overrides
// DefaultClientTimeout.
func NewLedgerClient(baseURL string, account interfaces.AccountAddress, timeout ...time.Duration) *LedgerClient {
	clientTimeout := DefaultClientTimeout
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &LedgerClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		account:    account,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// RegisterEnclave submits a raw attestation document for validation against
// the given config and returns the minted enclave record.
func (c *LedgerClient) RegisterEnclave(configID interfaces.ObjectID, rawDocument []byte) (*api.EnclaveRecordResponse, error) {
	body, err := c.doJSON(http.MethodPost, "/api/v1/enclave/register", api.RegisterEnclaveRequest{
		ConfigID:            configID.String(),
		AttestationDocument: interfaces.EncodeHex(rawDocument),
	})
	if err != nil {
		return nil, err
	}

	var record api.EnclaveRecordResponse
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("could not parse enclave record: %w", err)
	}
	return &record, nil
}

// SubmitSigned relays a signed enclave response to the ledger for
// verification and minting. The signature hex is validated locally so a
// corrupted response fails before any request is sent.
func (c *LedgerClient) SubmitSigned(enclaveID interfaces.ObjectID, signed *api.ProcessDataResponse) (*api.RandomRecordResponse, error) {
	if _, err := interfaces.DecodeHex(signed.Signature); err != nil {
		return nil, fmt.Errorf("malformed signature: %w", err)
	}

	body, err := c.doJSON(http.MethodPost, "/api/v1/random/submit", api.SubmitRandomRequest{
		EnclaveID:    enclaveID.String(),
		RandomNumber: signed.Response.Data.RandomNumber,
		Min:          signed.Response.Data.Min,
		Max:          signed.Response.Data.Max,
		TimestampMS:  signed.Response.TimestampMS,
		Signature:    signed.Signature,
	})
	if err != nil {
		return nil, err
	}

	var record api.RandomRecordResponse
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("could not parse random record: %w", err)
	}
	return &record, nil
}

// GetEnclave fetches a registered enclave record by object id.
func (c *LedgerClient) GetEnclave(enclaveID interfaces.ObjectID) (*api.EnclaveRecordResponse, error) {
	body, err := c.doJSON(http.MethodGet, "/api/v1/enclave/"+enclaveID.String(), nil)
	if err != nil {
		return nil, err
	}

	var record api.EnclaveRecordResponse
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("could not parse enclave record: %w", err)
	}
	return &record, nil
}

// CurrentConfig fetches the config new enclave registrations are expected to
// match.
func (c *LedgerClient) CurrentConfig() (*api.ConfigResponse, error) {
	body, err := c.doJSON(http.MethodGet, "/api/v1/config/current", nil)
	if err != nil {
		return nil, err
	}

	var cfg api.ConfigResponse
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	return &cfg, nil
}

// GetRecord fetches a minted random record by object id.
func (c *LedgerClient) GetRecord(recordID interfaces.ObjectID) (*api.RandomRecordResponse, error) {
	body, err := c.doJSON(http.MethodGet, "/api/v1/record/"+recordID.String(), nil)
	if err != nil {
		return nil, err
	}

	var record api.RandomRecordResponse
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("could not parse random record: %w", err)
	}
	return &record, nil
}

// DestroyRecord deletes a random record owned by this client's account.
func (c *LedgerClient) DestroyRecord(recordID interfaces.ObjectID) error {
	_, err := c.doJSON(http.MethodDelete, "/api/v1/record/"+recordID.String(), nil)
	return err
}

// CreateConfig registers a new enclave config holding the PEM trust anchor
// and expected measurements. Requires the module capability's owner account.
func (c *LedgerClient) CreateConfig(label string, anchorPEM []byte, measurements interfaces.MeasurementSet) (*api.ConfigResponse, error) {
	registers := measurements.Registers()
	body, err := c.doJSON(http.MethodPost, "/api/v1/config", api.CreateConfigRequest{
		Label:          label,
		TrustAnchorPEM: string(anchorPEM),
		Measurements: api.MeasurementsPayload{
			PCR0: registers[0].String(),
			PCR1: registers[1].String(),
			PCR2: registers[2].String(),
		},
	})
	if err != nil {
		return nil, err
	}

	var cfg api.ConfigResponse
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	return &cfg, nil
}

// UpdateMeasurements replaces the expected measurement set of an existing
// config. Requires the module capability's owner account.
func (c *LedgerClient) UpdateMeasurements(configID interfaces.ObjectID, measurements interfaces.MeasurementSet) (*api.ConfigResponse, error) {
	registers := measurements.Registers()
	body, err := c.doJSON(http.MethodPost, "/api/v1/config/"+configID.String()+"/measurements", api.UpdateMeasurementsRequest{
		Measurements: api.MeasurementsPayload{
			PCR0: registers[0].String(),
			PCR1: registers[1].String(),
			PCR2: registers[2].String(),
		},
	})
	if err != nil {
		return nil, err
	}

	var cfg api.ConfigResponse
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	return &cfg, nil
}

func (c *LedgerClient) doJSON(method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		marshaled, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(marshaled)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set(api.AccountHeader, c.account.String())
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request ledger service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read ledger response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &api.RequestError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s failed: %s", method, path, strings.TrimSpace(string(body))),
		}
	}

	return body, nil
}
