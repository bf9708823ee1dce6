package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Pause   PauseConfig   `mapstructure:"pause"`
	Logging LoggingConfig `mapstructure:"logging"`
	TLS     TLSConfig     `mapstructure:"tls"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	BindAddress string `mapstructure:"bind_address"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the Redis backend connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// AuthConfig defines identity and credential settings
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenExpiration string `mapstructure:"token_expiration"`
	IdentityCache   int    `mapstructure:"identity_cache"`
}

// PauseConfig defines break tracking behavior
type PauseConfig struct {
	DefaultTeamLimit    int    `mapstructure:"default_team_limit"`
	LunchBudgetSeconds  int64  `mapstructure:"lunch_budget_seconds"`
	ScreenBudgetSeconds int64  `mapstructure:"screen_budget_seconds"`
	WSAuthGrace         string `mapstructure:"ws_auth_grace"`
	RetentionDays       int    `mapstructure:"retention_days"`
	MaintenanceTime     string `mapstructure:"maintenance_time"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TLSConfig defines certificate settings for the public endpoint
type TLSConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CertFile        string `mapstructure:"cert_file"`
	KeyFile         string `mapstructure:"key_file"`
	UseLetsEncrypt  bool   `mapstructure:"use_lets_encrypt"`
	LegoEmail       string `mapstructure:"lego_email"`
	LegoDNSProvider string `mapstructure:"lego_dns_provider"`
	LegoCredentials string `mapstructure:"lego_credentials"`
	LegoCertPath    string `mapstructure:"lego_cert_path"`
	LegoKeyPath     string `mapstructure:"lego_key_path"`
	LegoCADirURL    string `mapstructure:"lego_ca_dir_url"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("BREAKDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.name", "breakdesk.local")
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/breakdesk/breakdesk.bolt")
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Auth defaults
	v.SetDefault("auth.token_expiration", "168h")
	v.SetDefault("auth.identity_cache", 1024)

	// Pause tracking defaults
	v.SetDefault("pause.default_team_limit", 6)
	v.SetDefault("pause.lunch_budget_seconds", 3600)
	v.SetDefault("pause.screen_budget_seconds", 1800)
	v.SetDefault("pause.ws_auth_grace", "30s")
	v.SetDefault("pause.retention_days", 90)
	v.SetDefault("pause.maintenance_time", "03:30")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// TLS defaults
	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.use_lets_encrypt", false)
	v.SetDefault("tls.lego_cert_path", "/var/lib/breakdesk/tls/cert.pem")
	v.SetDefault("tls.lego_key_path", "/var/lib/breakdesk/tls/key.pem")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if cfg.Pause.DefaultTeamLimit <= 0 {
		return fmt.Errorf("pause.default_team_limit must be positive")
	}
	if cfg.Pause.LunchBudgetSeconds < 0 || cfg.Pause.ScreenBudgetSeconds < 0 {
		return fmt.Errorf("pause budgets must not be negative")
	}

	switch cfg.Storage.Type {
	case "", "bolt":
		cfg.Storage.Type = "bolt"
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}

	return nil
}
