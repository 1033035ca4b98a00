package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goran-ethernal/MilestoneIndexor/internal/logger"
	"github.com/goran-ethernal/MilestoneIndexor/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthSource reports whether the process is doing useful work. The worker
// status registry satisfies this.
type HealthSource interface {
	AnyActive() bool
}

// Server is the HTTP server that exposes the health endpoint and Prometheus
// metrics.
type Server struct {
	config *config.MetricsConfig
	health HealthSource
	server *http.Server
	log    *logger.Logger
	stopCh chan struct{}
}

// NewServer creates a new metrics server.
func NewServer(config *config.MetricsConfig, health HealthSource, log *logger.Logger) *Server {
	return &Server{
		config: config,
		health: health,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start starts the HTTP server and begins collecting system metrics. The root
// path answers 200 while at least one worker is running or idle, 503 once all
// have stopped or errored, so orchestrator probes restart a wedged process.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// The health probe is always served; metrics exposition is opt-in.
	if s.config.Enabled {
		mux.Handle(s.config.Path, promhttp.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		s.serveHealth(w)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s.serveHealth(w)
	})

	s.server = &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go s.updateSystemMetrics(ctx)

	go func() {
		s.log.Infof("metrics server listening on %s", s.config.ListenAddress)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("metrics server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	close(s.stopCh)

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	return nil
}

func (s *Server) serveHealth(w http.ResponseWriter) {
	if s.health != nil && s.health.AnyActive() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("no active workers"))
}

// updateSystemMetrics periodically updates system-level metrics.
func (s *Server) updateSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			UpdateSystemMetrics()
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}
