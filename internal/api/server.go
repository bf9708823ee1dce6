package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/breakdesk/breakdesk/internal/auth"
	"github.com/breakdesk/breakdesk/internal/hub"
	"github.com/breakdesk/breakdesk/internal/pause"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the public HTTP server: REST API plus the websocket live channel.
type Server struct {
	store            storage.Store
	auth             *auth.Service
	manager          *pause.Manager
	gateway          *hub.WSGateway
	defaultTeamLimit int
	logger           zerolog.Logger

	httpServer *http.Server
	listener   net.Listener
	tlsConfig  *tls.Config
}

// Config holds the HTTP server settings.
type Config struct {
	Addr             string
	DefaultTeamLimit int
}

// NewServer creates the public HTTP server.
func NewServer(
	cfg Config,
	store storage.Store,
	authSvc *auth.Service,
	manager *pause.Manager,
	gateway *hub.WSGateway,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		store:            store,
		auth:             authSvc,
		manager:          manager,
		gateway:          gateway,
		defaultTeamLimit: cfg.DefaultTeamLimit,
		logger:           logger.With().Str("component", "api").Logger(),
	}

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// SetListener provides a pre-bound listener, for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// SetTLSConfig enables TLS on the public endpoint.
func (s *Server) SetTLSConfig(cfg *tls.Config) {
	s.tlsConfig = cfg
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/ws", s.gateway.Handler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/auth/change-password", s.handleChangePassword).Methods(http.MethodPost)

	authed.HandleFunc("/teams", s.handleListTeams).Methods(http.MethodGet)
	authed.HandleFunc("/teams/my-team", s.handleMyTeam).Methods(http.MethodGet)
	authed.HandleFunc("/teams/{id}/pause-sessions", s.handleTeamSessions).Methods(http.MethodGet)

	authed.HandleFunc("/pause/start", s.handleStartPause).Methods(http.MethodPost)
	authed.HandleFunc("/pause/end", s.handleEndPause).Methods(http.MethodPost)
	authed.HandleFunc("/pause/my-status", s.handleMyStatus).Methods(http.MethodGet)
	authed.HandleFunc("/pause/usage", s.handleMyUsage).Methods(http.MethodGet)

	admin := authed.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/stats", s.handleAdminStats).Methods(http.MethodGet)
	admin.HandleFunc("/users", s.handleAdminListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users", s.handleAdminCreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}", s.handleAdminDeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{id}/team", s.handleAdminAssignTeam).Methods(http.MethodPut)
	admin.HandleFunc("/users/{id}/password", s.handleAdminSetPassword).Methods(http.MethodPut)
	admin.HandleFunc("/users/{id}/clear-break-flag", s.handleAdminClearBreakFlag).Methods(http.MethodPost)
	admin.HandleFunc("/teams", s.handleListTeams).Methods(http.MethodGet)
	admin.HandleFunc("/teams", s.handleAdminCreateTeam).Methods(http.MethodPost)
	admin.HandleFunc("/teams/{id}", s.handleAdminUpdateTeam).Methods(http.MethodPut)
	admin.HandleFunc("/teams/{id}", s.handleAdminDeleteTeam).Methods(http.MethodDelete)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	errChan := make(chan error, 1)

	if s.tlsConfig != nil {
		s.httpServer.TLSConfig = s.tlsConfig
	}

	go func() {
		var err error
		switch {
		case s.listener != nil && s.tlsConfig != nil:
			s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Starting HTTPS server on activated socket")
			err = s.httpServer.ServeTLS(s.listener, "", "")
		case s.listener != nil:
			s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Starting HTTP server on activated socket")
			err = s.httpServer.Serve(s.listener)
		case s.tlsConfig != nil:
			s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTPS server")
			err = s.httpServer.ListenAndServeTLS("", "")
		default:
			s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait a bit to ensure the server started
	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
