// Package exposition serves the metrics endpoint over the published
// snapshots.
package exposition

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"proxmox-adaptive-exporter/config"
	"proxmox-adaptive-exporter/internal/registry"
)

// NewHandler builds the exporter's mux: the metrics path gated on snapshot
// readiness plus a liveness endpoint. Scrapes arriving before the first
// completed cycle get 503 rather than an empty metric set.
func NewHandler(cfg *config.Config, gatherer prometheus.Gatherer, reg *registry.Registry, logger zerolog.Logger) http.Handler {
	promHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !reg.Ready() {
			logger.Debug().Str("remote", r.RemoteAddr).Msg("Scrape before first collection cycle")
			http.Error(w, "first collection cycle not complete", http.StatusServiceUnavailable)
			return
		}
		promHandler.ServeHTTP(w, r)
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// NewServer wraps the handler in an http.Server with the configured
// address and scrape-side timeouts.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  3 * cfg.Server.Timeout,
	}
}

// ShutdownTimeout bounds graceful shutdown on exit.
const ShutdownTimeout = 5 * time.Second
