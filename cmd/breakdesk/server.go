package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/breakdesk/breakdesk/internal/acme"
	"github.com/breakdesk/breakdesk/internal/api"
	"github.com/breakdesk/breakdesk/internal/auth"
	"github.com/breakdesk/breakdesk/internal/config"
	"github.com/breakdesk/breakdesk/internal/hub"
	"github.com/breakdesk/breakdesk/internal/metrics"
	"github.com/breakdesk/breakdesk/internal/pause"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/breakdesk/breakdesk/internal/storage/bolt"
	"github.com/breakdesk/breakdesk/internal/storage/redis"
	"github.com/breakdesk/breakdesk/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start Breakdesk server",
	Long:  `Start the Breakdesk server with the REST API, websocket live channel and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Breakdesk")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Msg("Storage initialized")

	// Initialize authentication service
	authService, err := auth.NewService(
		store.Users(),
		cfg.Auth.JWTSecret,
		parseDuration(cfg.Auth.TokenExpiration, auth.DefaultTokenExpiration),
		cfg.Auth.IdentityCache,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}

	logger.Info().Msg("Auth service initialized")

	// Initialize broadcast hub and websocket gateway
	broadcastHub := hub.New(&hub.StoreAdminResolver{Users: store.Users()}, logger)
	gateway := hub.NewWSGateway(
		broadcastHub,
		authService,
		parseDuration(cfg.Pause.WSAuthGrace, hub.DefaultAuthGrace),
		logger,
	)
	gateway.Start()
	defer gateway.Stop()

	logger.Info().Msg("Broadcast hub initialized")

	// Initialize pause tracking
	gate := pause.NewGate(store.Sessions(), store.Teams(), cfg.Pause.DefaultTeamLimit, logger)
	ledger := pause.NewLedger(store.Usage(), pause.Budgets{
		LunchSeconds:  cfg.Pause.LunchBudgetSeconds,
		ScreenSeconds: cfg.Pause.ScreenBudgetSeconds,
	}, logger)
	manager := pause.NewManager(store, gate, ledger, broadcastHub, logger)

	logger.Info().
		Int("default_team_limit", cfg.Pause.DefaultTeamLimit).
		Int64("lunch_budget_seconds", cfg.Pause.LunchBudgetSeconds).
		Int64("screen_budget_seconds", cfg.Pause.ScreenBudgetSeconds).
		Msg("Pause manager initialized")

	// Initialize retention maintenance
	maintenance, err := pause.NewMaintenanceScheduler(
		store,
		cfg.Pause.MaintenanceTime,
		cfg.Pause.RetentionDays,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize maintenance scheduler: %w", err)
	}

	maintenance.Start()

	// Load TLS material if configured
	tlsConfig, err := loadTLSConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	// Initialize API server
	apiConfig := api.Config{
		Addr:             fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort),
		DefaultTeamLimit: cfg.Pause.DefaultTeamLimit,
	}

	apiServer := api.NewServer(apiConfig, store, authService, manager, gateway, logger)

	if tlsConfig != nil {
		apiServer.SetTLSConfig(tlsConfig)
	}

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.HTTP != nil {
		apiServer.SetListener(sdListeners.HTTP)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.Info().
		Str("addr", apiConfig.Addr).
		Msg("API server started")

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics server started")

	// Log startup complete
	logger.Info().Msg("Breakdesk startup complete")
	logger.Info().Msgf("API: %s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop servers
	maintenance.Stop()

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("Breakdesk stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// loadTLSConfig builds the TLS configuration for the public endpoint,
// obtaining a Let's Encrypt certificate first when configured.
func loadTLSConfig(cfg *config.Config, logger zerolog.Logger) (*tls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}

	certPath := cfg.TLS.CertFile
	keyPath := cfg.TLS.KeyFile

	if cfg.TLS.UseLetsEncrypt {
		logger.Info().
			Str("domain", cfg.Server.Name).
			Str("dns_provider", cfg.TLS.LegoDNSProvider).
			Msg("Let's Encrypt is enabled, obtaining certificate via ACME DNS-01 challenge")

		acmeClient := acme.NewClient(acme.Config{
			Email:       cfg.TLS.LegoEmail,
			DNSProvider: cfg.TLS.LegoDNSProvider,
			CertPath:    cfg.TLS.LegoCertPath,
			KeyPath:     cfg.TLS.LegoKeyPath,
			CADirURL:    cfg.TLS.LegoCADirURL,
			Domain:      cfg.Server.Name,
		}, logger)

		if err := acmeClient.ObtainCertificate(); err != nil {
			logger.Error().
				Err(err).
				Str("domain", cfg.Server.Name).
				Msg("Failed to obtain Let's Encrypt certificate - trying existing files")
		}

		certPath = cfg.TLS.LegoCertPath
		keyPath = cfg.TLS.LegoKeyPath
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
