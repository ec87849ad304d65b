package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ruteri/tee-randomness-service/api"
	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/ledger"
	"github.com/ruteri/tee-randomness-service/metrics"
	"github.com/ruteri/tee-randomness-service/randomness"
	"github.com/ruteri/tee-randomness-service/registry"
)

// Handler processes requests on the ledger service's public API: enclave
// registration, signed draw submission, record destruction and object
// lookups.
type Handler struct {
	ledger    *ledger.Ledger
	validator *cryptoutils.DocumentValidator
	dirID     interfaces.ObjectID
	archive   interfaces.StorageBackend
	log       *slog.Logger
}

// NewHandler creates a handler serving the public API.
//
// Parameters:
//   - led: The in-memory object ledger holding configs, enclaves and records
//   - validator: Attestation document validator used during registration
//   - dirID: The module directory object created at install time
//   - archive: Storage backend minted records are archived to, may be nil
//   - log: Structured logger for operational insights
func NewHandler(led *ledger.Ledger, validator *cryptoutils.DocumentValidator, dirID interfaces.ObjectID, archive interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{
		ledger:    led,
		validator: validator,
		dirID:     dirID,
		archive:   archive,
		log:       log,
	}
}

// HandleRegisterEnclave processes enclave registration requests. The raw
// attestation document is validated against the named config's trust anchor
// and expected measurements; on success a shared enclave record binding the
// attested public key is minted.
//
// URL format: POST /api/v1/enclave/register
// Required headers:
//   - X-Account-Address: Operator account recorded on the enclave record
//
// Request body: JSON with hex config id and hex COSE_Sign1 document.
//
// Response: 201 with the JSON rendering of the minted enclave record.
func (h *Handler) HandleRegisterEnclave(w http.ResponseWriter, r *http.Request) {
	operator, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.RegisterEnclaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("parsing registration request: %w", err).Error(), http.StatusBadRequest)
		return
	}

	configID, err := interfaces.NewObjectIDFromHex(req.ConfigID)
	if err != nil {
		http.Error(w, fmt.Errorf("invalid config id: %w", err).Error(), http.StatusBadRequest)
		return
	}

	rawDocument, err := interfaces.DecodeHex(req.AttestationDocument)
	if err != nil {
		http.Error(w, fmt.Errorf("invalid attestation document encoding: %w", err).Error(), http.StatusBadRequest)
		return
	}

	record, err := registry.Register[randomness.RandomResponse](h.ledger, h.validator, configID, rawDocument, operator)
	metrics.EnclaveRegistrations.WithLabelValues(registrationOutcome(err)).Inc()
	if err != nil {
		h.log.Error("Enclave registration failed", "err", err, "configId", req.ConfigID)
		http.Error(w, fmt.Errorf("registering enclave: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Info("Enclave registered",
		"enclaveId", record.ObjectID().String(),
		"configId", req.ConfigID,
		"operator", operator.String())

	h.writeJSONStatus(w, http.StatusCreated, enclaveRecordResponse(record))
}

// HandleSubmitRandom verifies a signed enclave response and mints a random
// record owned by the caller. Range bounds are checked before the signature,
// and the signature is verified against the registered enclave's public key
// over the canonical intent encoding.
//
// URL format: POST /api/v1/random/submit
// Required headers:
//   - X-Account-Address: Account that will own the minted record
//
// Response: 201 with the JSON rendering of the minted record.
func (h *Handler) HandleSubmitRandom(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.SubmitRandomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("parsing submission: %w", err).Error(), http.StatusBadRequest)
		return
	}

	enclaveID, err := interfaces.NewObjectIDFromHex(req.EnclaveID)
	if err != nil {
		http.Error(w, fmt.Errorf("invalid enclave id: %w", err).Error(), http.StatusBadRequest)
		return
	}

	signature, err := interfaces.DecodeHex(req.Signature)
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature encoding: %w", err).Error(), http.StatusBadRequest)
		return
	}

	record, err := randomness.SubmitRandom(h.ledger, enclaveID,
		uint64(req.RandomNumber), uint64(req.Min), uint64(req.Max), uint64(req.TimestampMS),
		signature, caller)
	metrics.RandomSubmissions.WithLabelValues(submissionOutcome(err)).Inc()
	if err != nil {
		h.log.Error("Submission rejected", "err", err, "enclaveId", req.EnclaveID)
		http.Error(w, fmt.Errorf("submitting random: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Info("Random record minted",
		"recordId", record.ObjectID().String(),
		"owner", caller.String())

	resp := randomRecordResponse(record, caller)
	h.archiveRecord(r.Context(), resp)
	h.writeJSONStatus(w, http.StatusCreated, resp)
}

// HandleGetEnclave returns a registered enclave record.
//
// URL format: GET /api/v1/enclave/{object_id}
func (h *Handler) HandleGetEnclave(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := registry.GetEnclave[randomness.RandomResponse](h.ledger, id)
	if err != nil {
		http.Error(w, fmt.Errorf("fetching enclave: %w", err).Error(), statusForError(err))
		return
	}

	h.writeJSON(w, enclaveRecordResponse(record))
}

// HandleGetRecord returns a minted random record and its owner.
//
// URL format: GET /api/v1/record/{object_id}
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, owner, err := randomness.GetRecord(h.ledger, id)
	if err != nil {
		http.Error(w, fmt.Errorf("fetching record: %w", err).Error(), statusForError(err))
		return
	}

	h.writeJSON(w, randomRecordResponse(record, owner))
}

// HandleDestroyRecord deletes a random record. Only the record's owner may
// destroy it.
//
// URL format: DELETE /api/v1/record/{object_id}
// Required headers:
//   - X-Account-Address: Account claiming ownership of the record
func (h *Handler) HandleDestroyRecord(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := objectIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := randomness.Destroy(h.ledger, id, caller); err != nil {
		h.log.Error("Record destruction failed", "err", err, "recordId", id.String())
		http.Error(w, fmt.Errorf("destroying record: %w", err).Error(), statusForError(err))
		return
	}

	metrics.RecordsDestroyed.Inc()
	h.log.Info("Record destroyed", "recordId", id.String(), "owner", caller.String())
	w.WriteHeader(http.StatusOK)
}

// HandleCurrentConfig returns the config new enclave registrations are
// expected to match.
//
// URL format: GET /api/v1/config/current
func (h *Handler) HandleCurrentConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := registry.CurrentConfig[randomness.RandomResponse](h.ledger, h.dirID)
	if err != nil {
		http.Error(w, fmt.Errorf("fetching current config: %w", err).Error(), statusForError(err))
		return
	}

	h.writeJSON(w, configResponse(cfg))
}

// HandleGetConfig returns an enclave config by object id, including
// superseded ones that registered enclaves still reference.
//
// URL format: GET /api/v1/config/{object_id}
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg, err := registry.GetConfig[randomness.RandomResponse](h.ledger, id)
	if err != nil {
		http.Error(w, fmt.Errorf("fetching config: %w", err).Error(), statusForError(err))
		return
	}

	h.writeJSON(w, configResponse(cfg))
}

// archiveRecord persists a minted record to the archive backend. Archiving
// is best effort: a failed write is logged and counted but never fails the
// mint that already happened.
func (h *Handler) archiveRecord(ctx context.Context, record api.RandomRecordResponse) {
	if h.archive == nil {
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		h.log.Error("Failed to serialize record for archive", "err", err, "recordId", record.RecordID)
		return
	}

	contentID, err := h.archive.Store(ctx, data, interfaces.RecordType)
	if err != nil {
		metrics.ArchiveWrites.WithLabelValues(h.archive.Name(), "error").Inc()
		h.log.Error("Failed to archive record", "err", err, "recordId", record.RecordID)
		return
	}

	metrics.ArchiveWrites.WithLabelValues(h.archive.Name(), "ok").Inc()
	h.log.Debug("Record archived", "recordId", record.RecordID, "contentId", contentID.String())
}

func (h *Handler) writeJSON(w http.ResponseWriter, body any) {
	h.writeJSONStatus(w, http.StatusOK, body)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func callerAccount(r *http.Request) (interfaces.AccountAddress, error) {
	raw := r.Header.Get(api.AccountHeader)
	if raw == "" {
		return interfaces.AccountAddress{}, fmt.Errorf("missing %s header", api.AccountHeader)
	}

	account, err := interfaces.NewAccountAddressFromHex(raw)
	if err != nil {
		return interfaces.AccountAddress{}, fmt.Errorf("invalid %s header: %w", api.AccountHeader, err)
	}
	return account, nil
}

func objectIDFromPath(r *http.Request) (interfaces.ObjectID, error) {
	raw := r.PathValue("object_id")
	if raw == "" {
		return interfaces.ObjectID{}, errors.New("missing object id in URL")
	}

	id, err := interfaces.NewObjectIDFromHex(raw)
	if err != nil {
		return interfaces.ObjectID{}, fmt.Errorf("invalid object id: %w", err)
	}
	return id, nil
}

// statusForError maps the service's error taxonomy onto HTTP status codes.
// Unknown errors land on 500 rather than leaking as false client faults.
func statusForError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInvalidHex), errors.Is(err, api.ErrNonIntegerNumber):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, cryptoutils.ErrMalformedDocument),
		errors.Is(err, cryptoutils.ErrChainInvalid),
		errors.Is(err, cryptoutils.ErrDocSignatureInvalid),
		errors.Is(err, cryptoutils.ErrMeasurementMismatch),
		errors.Is(err, randomness.ErrInvalidRange),
		errors.Is(err, randomness.ErrInvalidSignature),
		errors.Is(err, registry.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func registrationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, cryptoutils.ErrMeasurementMismatch):
		return "measurement_mismatch"
	case errors.Is(err, cryptoutils.ErrMalformedDocument):
		return "malformed_document"
	case errors.Is(err, cryptoutils.ErrChainInvalid), errors.Is(err, cryptoutils.ErrDocSignatureInvalid):
		return "untrusted_document"
	case errors.Is(err, ledger.ErrNotFound):
		return "config_not_found"
	default:
		return "error"
	}
}

func submissionOutcome(err error) string {
	switch {
	case err == nil:
		return "minted"
	case errors.Is(err, randomness.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, randomness.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ledger.ErrNotFound):
		return "enclave_not_found"
	default:
		return "error"
	}
}

func enclaveRecordResponse(record *registry.Enclave[randomness.RandomResponse]) api.EnclaveRecordResponse {
	return api.EnclaveRecordResponse{
		EnclaveID:    record.ObjectID().String(),
		ConfigID:     record.ConfigID.String(),
		Schema:       record.Schema(),
		PublicKey:    interfaces.EncodeHex(record.PublicKey()),
		Operator:     record.Operator.String(),
		RegisteredAt: record.RegisteredAt,
		NotBefore:    record.NotBefore,
		NotAfter:     record.NotAfter,
	}
}

func randomRecordResponse(record *randomness.RandomNFT, owner interfaces.AccountAddress) api.RandomRecordResponse {
	return api.RandomRecordResponse{
		RecordID:     record.ObjectID().String(),
		RandomNumber: api.U64(record.RandomNumber),
		Min:          api.U64(record.Min),
		Max:          api.U64(record.Max),
		TimestampMS:  api.U64(record.TimestampMS),
		Owner:        owner.String(),
	}
}

func configResponse(cfg *registry.Config[randomness.RandomResponse]) api.ConfigResponse {
	registers := cfg.Measurements.Registers()
	return api.ConfigResponse{
		ConfigID:          cfg.ObjectID().String(),
		Label:             cfg.Label,
		Schema:            cfg.Schema(),
		AnchorFingerprint: cfg.Anchor.Fingerprint().String(),
		Measurements: api.MeasurementsPayload{
			PCR0: registers[0].String(),
			PCR1: registers[1].String(),
			PCR2: registers[2].String(),
		},
		CreatedAt: cfg.CreatedAt,
	}
}
