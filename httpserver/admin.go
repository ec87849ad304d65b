package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ruteri/tee-randomness-service/api"
	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/ledger"
	"github.com/ruteri/tee-randomness-service/randomness"
	"github.com/ruteri/tee-randomness-service/registry"
)

// AdminHandler processes the capability-gated configuration endpoints.
//
// Configs decide which enclaves can register: each holds the trust anchor
// attestation chains must terminate in and the measurement set documents
// must claim. Creating a config or replacing measurements requires the
// module capability minted at install time, so only requests from the
// capability owner's account pass. Everyone else gets a 403 from the ledger
// ownership check rather than from any handler-level ACL.
type AdminHandler struct {
	ledger *ledger.Ledger
	dirID  interfaces.ObjectID
	capID  interfaces.ObjectID
	log    *slog.Logger
}

// NewAdminHandler creates an admin handler bound to the module's directory
// and capability objects.
func NewAdminHandler(led *ledger.Ledger, dirID, capID interfaces.ObjectID, log *slog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger: led,
		dirID:  dirID,
		capID:  capID,
		log:    log,
	}
}

// HandleCreateConfig registers a new enclave config and makes it the current
// one for its schema. Previously registered enclaves keep referencing the
// config they were validated against.
//
// URL format: POST /api/v1/config
// Required headers:
//   - X-Account-Address: Must be the module capability's owner
//
// Request body: JSON with a label, the PEM trust anchor and the three
// expected measurement registers in hex.
func (h *AdminHandler) HandleCreateConfig(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("parsing config request: %w", err).Error(), http.StatusBadRequest)
		return
	}

	anchor, err := cryptoutils.NewTrustAnchorFromPEM([]byte(req.TrustAnchorPEM))
	if err != nil {
		http.Error(w, fmt.Errorf("invalid trust anchor: %w", err).Error(), http.StatusBadRequest)
		return
	}

	measurements, err := measurementsFromPayload(req.Measurements)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg, err := registry.CreateConfig[randomness.RandomResponse](h.ledger, h.dirID, h.capID, caller, req.Label, anchor, measurements)
	if err != nil {
		h.log.Error("Config creation failed", "err", err, "caller", caller.String())
		http.Error(w, fmt.Errorf("creating config: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Info("Config created",
		"configId", cfg.ObjectID().String(),
		"label", req.Label,
		"anchorFingerprint", cfg.Anchor.Fingerprint().String())

	writeAdminJSON(w, h.log, configResponse(cfg))
}

// HandleUpdateMeasurements replaces the expected measurement set of an
// existing config, for rolling out a new enclave image without changing the
// trust anchor. Enclaves registered under the old measurements stay
// registered; only future registrations are checked against the new set.
//
// URL format: POST /api/v1/config/{object_id}/measurements
// Required headers:
//   - X-Account-Address: Must be the module capability's owner
func (h *AdminHandler) HandleUpdateMeasurements(w http.ResponseWriter, r *http.Request) {
	caller, err := callerAccount(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	configID, err := objectIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.UpdateMeasurementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("parsing measurements request: %w", err).Error(), http.StatusBadRequest)
		return
	}

	measurements, err := measurementsFromPayload(req.Measurements)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := registry.UpdateMeasurements(h.ledger, h.capID, configID, caller, measurements); err != nil {
		h.log.Error("Measurement update failed", "err", err, "configId", configID.String())
		http.Error(w, fmt.Errorf("updating measurements: %w", err).Error(), statusForError(err))
		return
	}

	cfg, err := registry.GetConfig[randomness.RandomResponse](h.ledger, configID)
	if err != nil {
		http.Error(w, fmt.Errorf("fetching updated config: %w", err).Error(), statusForError(err))
		return
	}

	h.log.Info("Config measurements updated", "configId", configID.String())
	writeAdminJSON(w, h.log, configResponse(cfg))
}

func measurementsFromPayload(payload api.MeasurementsPayload) (interfaces.MeasurementSet, error) {
	measurements, err := interfaces.NewMeasurementSetFromHex(payload.PCR0, payload.PCR1, payload.PCR2)
	if err != nil {
		return interfaces.MeasurementSet{}, fmt.Errorf("invalid measurements: %w", err)
	}
	return measurements, nil
}

func writeAdminJSON(w http.ResponseWriter, log *slog.Logger, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to encode response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
