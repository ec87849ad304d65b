// Package metrics exposes the ledger service's Prometheus collectors and the
// standalone scrape endpoint server. The scrape endpoint runs on its own
// listener so operational traffic stays off the public API port.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruteri/tee-randomness-service/common"
)

// Outcome label values follow the API surface's error taxonomy, so a
// dashboard can tell rejected input apart from service failures.
var (
	// EnclaveRegistrations counts registration attempts by outcome.
	EnclaveRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "randomness_enclave_registrations_total",
		Help: "Enclave registration attempts by outcome.",
	}, []string{"outcome"})

	// RandomSubmissions counts signed draw submissions by outcome.
	RandomSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "randomness_submissions_total",
		Help: "Signed draw submissions by outcome.",
	}, []string{"outcome"})

	// RecordsDestroyed counts records destroyed by their owner.
	RecordsDestroyed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "randomness_records_destroyed_total",
		Help: "Random records destroyed by their owner.",
	})

	// ArchiveWrites counts record archive writes by backend and outcome.
	ArchiveWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "randomness_archive_writes_total",
		Help: "Record archive writes by backend and outcome.",
	}, []string{"backend", "outcome"})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given service name and listen
// address. The service name and build version are exported through a
// build_info gauge.
func New(service, listenAddr string) (*MetricsServer, error) {
	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "build_info",
		Help:        "Build information.",
		ConstLabels: prometheus.Labels{"service": service},
	}, []string{"version"})

	if err := prometheus.Register(buildInfo); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
	} else {
		buildInfo.WithLabelValues(common.Version).Set(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{Addr: listenAddr, Handler: mux},
	}, nil
}

// ListenAndServe serves the scrape endpoint until Shutdown is called.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
