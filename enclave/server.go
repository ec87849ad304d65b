package enclave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mdlayher/vsock"
	"go.uber.org/zap"

	"github.com/ruteri/tee-randomness-service/api"
	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/interfaces"
)

// Config configures the enclave service.
type Config struct {
	// ListenAddr is the TCP address to serve on. Ignored when VSockPort is
	// set.
	ListenAddr string

	// VSockPort, when non-zero, makes the service listen on the enclave's
	// vsock interface instead of TCP. This is the production path inside a
	// Nitro enclave, where no network devices exist.
	VSockPort uint32

	Provider cryptoutils.AttestationProvider
	Signer   *Signer
	Log      *zap.Logger
}

// Server is the HTTP service running inside the enclave. It exposes the
// draw, attestation and health endpoints and owns the signing key's
// attestation cache.
type Server struct {
	log          *zap.Logger
	signer       *Signer
	attestations *attestationCache

	listenAddr string
	vsockPort  uint32
	srv        *http.Server
}

// New creates a Server from cfg. The signer and attestation provider are
// required.
func New(cfg Config) (*Server, error) {
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("attestation provider is required")
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		log:          log,
		signer:       cfg.Signer,
		attestations: newAttestationCache(cfg.Provider, cfg.Signer.PublicKey()),
		listenAddr:   cfg.ListenAddr,
		vsockPort:    cfg.VSockPort,
	}

	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Post("/process_data", s.handleProcessData)
	r.Get("/get_attestation", s.handleGetAttestation)
	r.Get("/health_check", s.handleHealthCheck)

	s.srv = &http.Server{
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the service's HTTP handler, for serving through a custom
// listener or in tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on the configured vsock port or TCP address until
// Shutdown is called. It warms the attestation cache before accepting
// requests so the first caller does not pay for the platform round trip.
func (s *Server) ListenAndServe() error {
	if _, err := s.attestations.Document(); err != nil {
		s.log.Warn("could not warm attestation cache", zap.Error(err))
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}

	s.log.Info("enclave service listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	if s.vsockPort != 0 {
		ln, err := vsock.Listen(s.vsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("listening on vsock port %d: %w", s.vsockPort, err)
		}
		return ln, nil
	}

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.listenAddr, err)
	}
	return ln, nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleProcessData(w http.ResponseWriter, r *http.Request) {
	var req api.ProcessDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Errorf("parsing process_data request: %w", err).Error(), http.StatusBadRequest)
		return
	}

	draw, err := s.signer.ProcessData(uint64(req.Payload.Min), uint64(req.Payload.Max))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidBounds) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	s.log.Info("served random draw",
		zap.Uint64("min", draw.Response.Min),
		zap.Uint64("max", draw.Response.Max),
		zap.Uint64("timestamp_ms", draw.TimestampMS),
	)

	s.respondJSON(w, api.ProcessDataResponse{
		Response: api.SignedPayload{
			Data: api.RandomData{
				RandomNumber: api.U64(draw.Response.RandomNumber),
				Min:          api.U64(draw.Response.Min),
				Max:          api.U64(draw.Response.Max),
			},
			TimestampMS: api.U64(draw.TimestampMS),
		},
		Signature: interfaces.EncodeHex(draw.Signature),
	})
}

func (s *Server) handleGetAttestation(w http.ResponseWriter, r *http.Request) {
	doc, err := s.attestations.Document()
	if err != nil {
		s.log.Error("attestation request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.respondJSON(w, api.AttestationResponse{Attestation: interfaces.EncodeHex(doc)})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := s.attestations.Document(); err != nil {
		http.Error(w, fmt.Errorf("attestation unavailable: %w", err).Error(), http.StatusServiceUnavailable)
		return
	}

	s.respondJSON(w, api.HealthResponse{Status: "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("could not write response", zap.Error(err))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
