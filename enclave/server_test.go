package enclave

import (
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ruteri/tee-randomness-service/api"
	"github.com/ruteri/tee-randomness-service/api/clients"
	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/intent"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/randomness"
)

type serverEnv struct {
	srv          *httptest.Server
	client       *clients.EnclaveClient
	signer       *Signer
	provider     *cryptoutils.LocalAttestationProvider
	measurements interfaces.MeasurementSet
}

func setupServer(t *testing.T) *serverEnv {
	t.Helper()

	measurements, err := interfaces.NewMeasurementSetFromHex(
		strings.Repeat("01", 48), strings.Repeat("02", 48), strings.Repeat("03", 48))
	require.NoError(t, err)

	provider, err := cryptoutils.NewLocalAttestationProvider(measurements)
	require.NoError(t, err)

	signer, err := NewSigner()
	require.NoError(t, err)

	server, err := New(Config{Signer: signer, Provider: provider, Log: zap.NewNop()})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &serverEnv{
		srv:          srv,
		client:       clients.NewEnclaveClient(srv.URL),
		signer:       signer,
		provider:     provider,
		measurements: measurements,
	}
}

func TestServer_ProcessData(t *testing.T) {
	env := setupServer(t)

	resp, err := env.client.ProcessData(1, 100)
	require.NoError(t, err)

	n := uint64(resp.Response.Data.RandomNumber)
	require.GreaterOrEqual(t, n, uint64(1))
	require.LessOrEqual(t, n, uint64(100))

	sig, err := interfaces.DecodeHex(resp.Signature)
	require.NoError(t, err)

	signed, err := intent.NewProcessDataMessage(uint64(resp.Response.TimestampMS), randomness.RandomResponse{
		RandomNumber: n,
		Min:          uint64(resp.Response.Data.Min),
		Max:          uint64(resp.Response.Data.Max),
	}).Encode()
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(env.signer.PublicKey(), signed, sig))
}

func TestServer_ProcessData_BadBounds(t *testing.T) {
	env := setupServer(t)

	_, err := env.client.ProcessData(5, 5)
	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.Contains(t, reqErr.Error(), "strictly below")
}

func TestServer_ProcessData_NonIntegerBounds(t *testing.T) {
	env := setupServer(t)

	resp, err := http.Post(env.srv.URL+"/process_data", "application/json",
		strings.NewReader(`{"payload":{"min":1.5,"max":100}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_GetAttestation(t *testing.T) {
	env := setupServer(t)

	doc, err := env.client.GetAttestation()
	require.NoError(t, err)

	validator := &cryptoutils.DocumentValidator{}
	result, err := validator.Validate(doc, env.provider.TrustAnchor(), env.measurements)
	require.NoError(t, err)
	assert.Equal(t, env.signer.PublicKey(), []byte(result.PublicKey))
}

func TestServer_GetAttestation_Cached(t *testing.T) {
	env := setupServer(t)

	first, err := env.client.GetAttestation()
	require.NoError(t, err)
	second, err := env.client.GetAttestation()
	require.NoError(t, err)

	assert.Equal(t, first, second, "documents within the TTL should come from the cache")
}

func TestServer_HealthCheck(t *testing.T) {
	env := setupServer(t)
	require.NoError(t, env.client.HealthCheck())
}

type failingProvider struct{}

func (failingProvider) AttestationType() cryptoutils.AttestationType {
	return cryptoutils.LocalAttestation
}

func (failingProvider) Attest(cryptoutils.AttestationRequest) ([]byte, error) {
	return nil, assert.AnError
}

func TestServer_HealthCheck_AttestationUnavailable(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err)

	server, err := New(Config{Signer: signer, Provider: failingProvider{}, Log: zap.NewNop()})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	err = clients.NewEnclaveClient(srv.URL).HealthCheck()
	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
}

func TestNew_MissingDependencies(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err)

	_, err = New(Config{Provider: failingProvider{}})
	require.Error(t, err)

	_, err = New(Config{Signer: signer})
	require.Error(t, err)
}
