package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Pause lifecycle metrics
	PauseStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakdesk_pause_starts_total",
			Help: "Total pause sessions started",
		},
		[]string{"category"},
	)

	PauseEndsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakdesk_pause_ends_total",
			Help: "Total pause sessions ended",
		},
		[]string{"category"},
	)

	PauseRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakdesk_pause_rejections_total",
			Help: "Total pause start requests rejected",
		},
		[]string{"reason"},
	)

	// Usage metrics
	UsageSecondsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakdesk_usage_seconds_total",
			Help: "Total pause seconds accumulated",
		},
		[]string{"category"},
	)

	BudgetExceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakdesk_budget_exceeded_total",
			Help: "Times a daily budget was newly exceeded",
		},
		[]string{"category"},
	)

	// Live channel metrics
	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakdesk_live_connections",
			Help: "Number of registered live connections",
		},
	)

	BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakdesk_broadcasts_total",
			Help: "Total events delivered to live connections",
		},
		[]string{"scope"},
	)

	AuthFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "breakdesk_live_auth_failures_total",
			Help: "Failed live channel authentication attempts",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		PauseStartsTotal,
		PauseEndsTotal,
		PauseRejectionsTotal,
		UsageSecondsTotal,
		BudgetExceededTotal,
		LiveConnections,
		BroadcastsTotal,
		AuthFailuresTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
