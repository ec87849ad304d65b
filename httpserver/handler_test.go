package httpserver

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-randomness-service/api"
	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/intent"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/ledger"
	"github.com/ruteri/tee-randomness-service/randomness"
	"github.com/ruteri/tee-randomness-service/registry"
)

const (
	adminAccount     = "1111111111111111111111111111111111111111"
	submitterAccount = "2222222222222222222222222222222222222222"
	otherAccount     = "3333333333333333333333333333333333333333"
)

// testService wires a full ledger service with a local attestation provider
// and a signing key the tests control.
type testService struct {
	server       *httptest.Server
	provider     *cryptoutils.LocalAttestationProvider
	pub          ed25519.PublicKey
	priv         ed25519.PrivateKey
	configID     string
	measurements interfaces.MeasurementSet
}

func newTestService(t *testing.T) *testService {
	t.Helper()

	measurements, err := interfaces.NewMeasurementSetFromHex(
		strings.Repeat("aa", 48), strings.Repeat("bb", 48), strings.Repeat("cc", 48))
	require.NoError(t, err)

	provider, err := cryptoutils.NewLocalAttestationProvider(measurements)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	led := ledger.New()
	admin, err := interfaces.NewAccountAddressFromHex(adminAccount)
	require.NoError(t, err)
	moduleCap, dir, err := registry.InstallModule(led, admin)
	require.NoError(t, err)

	cfg, err := registry.CreateConfig[randomness.RandomResponse](led, dir.ObjectID(), moduleCap.ObjectID(), admin,
		"test enclave", provider.TrustAnchor(), measurements)
	require.NoError(t, err)

	handler := NewHandler(led, &cryptoutils.DocumentValidator{}, dir.ObjectID(), nil, log)
	adminHandler := NewAdminHandler(led, dir.ObjectID(), moduleCap.ObjectID(), log)

	srv, err := New(&HTTPServerConfig{ListenAddr: "127.0.0.1:0", Log: log}, handler, adminHandler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)

	return &testService{
		server:       ts,
		provider:     provider,
		pub:          pub,
		priv:         priv,
		configID:     cfg.ObjectID().String(),
		measurements: measurements,
	}
}

func (s *testService) do(t *testing.T, method, path, account string, body any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reqBody)
	require.NoError(t, err)
	if account != "" {
		req.Header.Set(api.AccountHeader, account)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// register runs a full attested registration and returns the enclave id.
func (s *testService) register(t *testing.T) string {
	t.Helper()

	doc, err := s.provider.Attest(cryptoutils.AttestationRequest{PublicKey: s.pub})
	require.NoError(t, err)

	resp := s.do(t, http.MethodPost, "/api/v1/enclave/register", submitterAccount, api.RegisterEnclaveRequest{
		ConfigID:            s.configID,
		AttestationDocument: interfaces.EncodeHex(doc),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	record := decodeBody[api.EnclaveRecordResponse](t, resp)
	require.Equal(t, interfaces.EncodeHex(s.pub), record.PublicKey)
	return record.EnclaveID
}

func (s *testService) sign(t *testing.T, timestampMS uint64, payload randomness.RandomResponse) []byte {
	t.Helper()
	signed, err := intent.NewProcessDataMessage(timestampMS, payload).Encode()
	require.NoError(t, err)
	return ed25519.Sign(s.priv, signed)
}

func TestHandler_RegisterAndSubmit(t *testing.T) {
	svc := newTestService(t)
	enclaveID := svc.register(t)

	payload := randomness.RandomResponse{RandomNumber: 42, Min: 1, Max: 100}
	sig := svc.sign(t, 1700000000000, payload)

	resp := svc.do(t, http.MethodPost, "/api/v1/random/submit", submitterAccount, api.SubmitRandomRequest{
		EnclaveID:    enclaveID,
		RandomNumber: 42,
		Min:          1,
		Max:          100,
		TimestampMS:  1700000000000,
		Signature:    interfaces.EncodeHex(sig),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	record := decodeBody[api.RandomRecordResponse](t, resp)
	assert.Equal(t, api.U64(42), record.RandomNumber)
	assert.Equal(t, api.U64(1), record.Min)
	assert.Equal(t, api.U64(100), record.Max)
	assert.Equal(t, api.U64(1700000000000), record.TimestampMS)
	assert.Equal(t, submitterAccount, record.Owner)

	// record is readable by anyone
	got := svc.do(t, http.MethodGet, "/api/v1/record/"+record.RecordID, "", nil)
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, record, decodeBody[api.RandomRecordResponse](t, got))

	// resubmitting the identical signed payload mints a second record
	again := svc.do(t, http.MethodPost, "/api/v1/random/submit", submitterAccount, api.SubmitRandomRequest{
		EnclaveID:    enclaveID,
		RandomNumber: 42,
		Min:          1,
		Max:          100,
		TimestampMS:  1700000000000,
		Signature:    interfaces.EncodeHex(sig),
	})
	require.Equal(t, http.StatusCreated, again.StatusCode)
	second := decodeBody[api.RandomRecordResponse](t, again)
	assert.NotEqual(t, record.RecordID, second.RecordID)
}

func TestHandler_SubmitRejections(t *testing.T) {
	svc := newTestService(t)
	enclaveID := svc.register(t)

	valid := randomness.RandomResponse{RandomNumber: 42, Min: 1, Max: 100}
	sig := svc.sign(t, 1700000000000, valid)

	submit := func(req api.SubmitRandomRequest, account string) *http.Response {
		return svc.do(t, http.MethodPost, "/api/v1/random/submit", account, req)
	}

	t.Run("out of range value", func(t *testing.T) {
		outside := randomness.RandomResponse{RandomNumber: 101, Min: 1, Max: 100}
		resp := submit(api.SubmitRandomRequest{
			EnclaveID: enclaveID, RandomNumber: 101, Min: 1, Max: 100, TimestampMS: 1700000000000,
			Signature: interfaces.EncodeHex(svc.sign(t, 1700000000000, outside)),
		}, submitterAccount)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("corrupted signature", func(t *testing.T) {
		bad := append([]byte(nil), sig...)
		bad[7] ^= 0x01
		resp := submit(api.SubmitRandomRequest{
			EnclaveID: enclaveID, RandomNumber: 42, Min: 1, Max: 100, TimestampMS: 1700000000000,
			Signature: interfaces.EncodeHex(bad),
		}, submitterAccount)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("odd length signature hex", func(t *testing.T) {
		resp := submit(api.SubmitRandomRequest{
			EnclaveID: enclaveID, RandomNumber: 42, Min: 1, Max: 100, TimestampMS: 1700000000000,
			Signature: interfaces.EncodeHex(sig)[1:],
		}, submitterAccount)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing account header", func(t *testing.T) {
		resp := submit(api.SubmitRandomRequest{
			EnclaveID: enclaveID, RandomNumber: 42, Min: 1, Max: 100, TimestampMS: 1700000000000,
			Signature: interfaces.EncodeHex(sig),
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown enclave", func(t *testing.T) {
		resp := submit(api.SubmitRandomRequest{
			EnclaveID: strings.Repeat("00", 32), RandomNumber: 42, Min: 1, Max: 100, TimestampMS: 1700000000000,
			Signature: interfaces.EncodeHex(sig),
		}, submitterAccount)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandler_RegisterRejections(t *testing.T) {
	svc := newTestService(t)

	t.Run("measurement mismatch", func(t *testing.T) {
		// config with the provider's anchor but different expected registers
		created := svc.do(t, http.MethodPost, "/api/v1/config", adminAccount, api.CreateConfigRequest{
			Label:          "stricter image",
			TrustAnchorPEM: string(svc.provider.TrustAnchor().PEM()),
			Measurements: api.MeasurementsPayload{
				PCR0: strings.Repeat("aa", 48),
				PCR1: strings.Repeat("bb", 48),
				PCR2: strings.Repeat("dd", 48),
			},
		})
		require.Equal(t, http.StatusOK, created.StatusCode)
		cfg := decodeBody[api.ConfigResponse](t, created)

		doc, err := svc.provider.Attest(cryptoutils.AttestationRequest{PublicKey: svc.pub})
		require.NoError(t, err)

		resp := svc.do(t, http.MethodPost, "/api/v1/enclave/register", submitterAccount, api.RegisterEnclaveRequest{
			ConfigID:            cfg.ConfigID,
			AttestationDocument: interfaces.EncodeHex(doc),
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("untrusted chain", func(t *testing.T) {
		foreign, err := cryptoutils.NewLocalAttestationProvider(svc.measurements)
		require.NoError(t, err)

		doc, err := foreign.Attest(cryptoutils.AttestationRequest{PublicKey: svc.pub})
		require.NoError(t, err)

		resp := svc.do(t, http.MethodPost, "/api/v1/enclave/register", submitterAccount, api.RegisterEnclaveRequest{
			ConfigID:            svc.configID,
			AttestationDocument: interfaces.EncodeHex(doc),
		})
		// chain does not terminate in the config's anchor
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("garbage document", func(t *testing.T) {
		resp := svc.do(t, http.MethodPost, "/api/v1/enclave/register", submitterAccount, api.RegisterEnclaveRequest{
			ConfigID:            svc.configID,
			AttestationDocument: "deadbeef",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("unknown config", func(t *testing.T) {
		doc, err := svc.provider.Attest(cryptoutils.AttestationRequest{PublicKey: svc.pub})
		require.NoError(t, err)

		resp := svc.do(t, http.MethodPost, "/api/v1/enclave/register", submitterAccount, api.RegisterEnclaveRequest{
			ConfigID:            strings.Repeat("00", 32),
			AttestationDocument: interfaces.EncodeHex(doc),
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandler_DestroyRecord(t *testing.T) {
	svc := newTestService(t)
	enclaveID := svc.register(t)

	payload := randomness.RandomResponse{RandomNumber: 7, Min: 1, Max: 10}
	resp := svc.do(t, http.MethodPost, "/api/v1/random/submit", submitterAccount, api.SubmitRandomRequest{
		EnclaveID: enclaveID, RandomNumber: 7, Min: 1, Max: 10, TimestampMS: 1700000000000,
		Signature: interfaces.EncodeHex(svc.sign(t, 1700000000000, payload)),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	record := decodeBody[api.RandomRecordResponse](t, resp)

	// only the owner may destroy
	denied := svc.do(t, http.MethodDelete, "/api/v1/record/"+record.RecordID, otherAccount, nil)
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)

	ok := svc.do(t, http.MethodDelete, "/api/v1/record/"+record.RecordID, submitterAccount, nil)
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	gone := svc.do(t, http.MethodGet, "/api/v1/record/"+record.RecordID, "", nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestHandler_ConfigEndpoints(t *testing.T) {
	svc := newTestService(t)

	t.Run("current config", func(t *testing.T) {
		resp := svc.do(t, http.MethodGet, "/api/v1/config/current", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		cfg := decodeBody[api.ConfigResponse](t, resp)
		assert.Equal(t, svc.configID, cfg.ConfigID)
		assert.Equal(t, strings.Repeat("aa", 48), cfg.Measurements.PCR0)
	})

	t.Run("create requires capability", func(t *testing.T) {
		resp := svc.do(t, http.MethodPost, "/api/v1/config", otherAccount, api.CreateConfigRequest{
			Label:          "rogue",
			TrustAnchorPEM: string(svc.provider.TrustAnchor().PEM()),
			Measurements: api.MeasurementsPayload{
				PCR0: strings.Repeat("aa", 48),
				PCR1: strings.Repeat("bb", 48),
				PCR2: strings.Repeat("cc", 48),
			},
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("create supersedes current", func(t *testing.T) {
		resp := svc.do(t, http.MethodPost, "/api/v1/config", adminAccount, api.CreateConfigRequest{
			Label:          "next image",
			TrustAnchorPEM: string(svc.provider.TrustAnchor().PEM()),
			Measurements: api.MeasurementsPayload{
				PCR0: strings.Repeat("11", 48),
				PCR1: strings.Repeat("22", 48),
				PCR2: strings.Repeat("33", 48),
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		created := decodeBody[api.ConfigResponse](t, resp)

		current := svc.do(t, http.MethodGet, "/api/v1/config/current", "", nil)
		require.Equal(t, http.StatusOK, current.StatusCode)
		assert.Equal(t, created.ConfigID, decodeBody[api.ConfigResponse](t, current).ConfigID)
	})

	t.Run("update measurements", func(t *testing.T) {
		resp := svc.do(t, http.MethodPost, "/api/v1/config/"+svc.configID+"/measurements", adminAccount, api.UpdateMeasurementsRequest{
			Measurements: api.MeasurementsPayload{
				PCR0: strings.Repeat("44", 48),
				PCR1: strings.Repeat("55", 48),
				PCR2: strings.Repeat("66", 48),
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		updated := decodeBody[api.ConfigResponse](t, resp)
		assert.Equal(t, strings.Repeat("44", 48), updated.Measurements.PCR0)
	})
}

func TestServer_HealthEndpoints(t *testing.T) {
	svc := newTestService(t)

	live := svc.do(t, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, live.StatusCode)

	ready := svc.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, ready.StatusCode)

	drain := svc.do(t, http.MethodGet, "/drain", "", nil)
	assert.Equal(t, http.StatusOK, drain.StatusCode)

	notReady := svc.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, notReady.StatusCode)

	undrain := svc.do(t, http.MethodGet, "/undrain", "", nil)
	assert.Equal(t, http.StatusOK, undrain.StatusCode)

	readyAgain := svc.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, readyAgain.StatusCode)
}
