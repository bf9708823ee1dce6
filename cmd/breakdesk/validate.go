package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/breakdesk/breakdesk/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the Breakdesk configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, getDefaultConfig())
	}

	return nil
}

// getDefaultConfig creates a configuration with default values only
func getDefaultConfig() *config.Config {
	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}

// getValidKeys returns a set of all valid configuration keys
func getValidKeys() map[string]bool {
	return map[string]bool{
		// Server
		"server.name":         true,
		"server.bind_address": true,
		"server.http_port":    true,
		"server.metrics_port": true,

		// Storage
		"storage.type":                 true,
		"storage.path":                 true,
		"storage.redis.host":           true,
		"storage.redis.port":           true,
		"storage.redis.password":       true,
		"storage.redis.db":             true,
		"storage.redis.pool_size":      true,
		"storage.redis.min_idle_conns": true,
		"storage.redis.dial_timeout":   true,
		"storage.redis.read_timeout":   true,
		"storage.redis.write_timeout":  true,

		// Auth
		"auth.jwt_secret":       true,
		"auth.token_expiration": true,
		"auth.identity_cache":   true,

		// Pause tracking
		"pause.default_team_limit":    true,
		"pause.lunch_budget_seconds":  true,
		"pause.screen_budget_seconds": true,
		"pause.ws_auth_grace":         true,
		"pause.retention_days":        true,
		"pause.maintenance_time":      true,

		// Logging
		"logging.level":  true,
		"logging.format": true,

		// TLS
		"tls.enabled":           true,
		"tls.cert_file":         true,
		"tls.key_file":          true,
		"tls.use_lets_encrypt":  true,
		"tls.lego_email":        true,
		"tls.lego_dns_provider": true,
		"tls.lego_credentials":  true,
		"tls.lego_cert_path":    true,
		"tls.lego_key_path":     true,
		"tls.lego_ca_dir_url":   true,
	}
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	// Server
	_, _ = cyan.Println("\n[server]")
	dumpField("  name", cfg.Server.Name, defaultCfg.Server.Name, yellow, green)
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  http_port", cfg.Server.HTTPPort, defaultCfg.Server.HTTPPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)

	// Storage
	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	_, _ = cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactSecret(cfg.Storage.Redis.Password), redactSecret(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)

	// Auth
	_, _ = cyan.Println("\n[auth]")
	dumpField("  jwt_secret", redactSecret(cfg.Auth.JWTSecret), redactSecret(defaultCfg.Auth.JWTSecret), yellow, green)
	dumpField("  token_expiration", cfg.Auth.TokenExpiration, defaultCfg.Auth.TokenExpiration, yellow, green)
	dumpField("  identity_cache", cfg.Auth.IdentityCache, defaultCfg.Auth.IdentityCache, yellow, green)

	// Pause tracking
	_, _ = cyan.Println("\n[pause]")
	dumpField("  default_team_limit", cfg.Pause.DefaultTeamLimit, defaultCfg.Pause.DefaultTeamLimit, yellow, green)
	dumpField("  lunch_budget_seconds", cfg.Pause.LunchBudgetSeconds, defaultCfg.Pause.LunchBudgetSeconds, yellow, green)
	dumpField("  screen_budget_seconds", cfg.Pause.ScreenBudgetSeconds, defaultCfg.Pause.ScreenBudgetSeconds, yellow, green)
	dumpField("  ws_auth_grace", cfg.Pause.WSAuthGrace, defaultCfg.Pause.WSAuthGrace, yellow, green)
	dumpField("  retention_days", cfg.Pause.RetentionDays, defaultCfg.Pause.RetentionDays, yellow, green)
	dumpField("  maintenance_time", cfg.Pause.MaintenanceTime, defaultCfg.Pause.MaintenanceTime, yellow, green)

	// Logging
	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	// TLS
	_, _ = cyan.Println("\n[tls]")
	dumpField("  enabled", cfg.TLS.Enabled, defaultCfg.TLS.Enabled, yellow, green)
	dumpField("  cert_file", cfg.TLS.CertFile, defaultCfg.TLS.CertFile, yellow, green)
	dumpField("  key_file", cfg.TLS.KeyFile, defaultCfg.TLS.KeyFile, yellow, green)
	dumpField("  use_lets_encrypt", cfg.TLS.UseLetsEncrypt, defaultCfg.TLS.UseLetsEncrypt, yellow, green)
	dumpField("  lego_email", cfg.TLS.LegoEmail, defaultCfg.TLS.LegoEmail, yellow, green)
	dumpField("  lego_dns_provider", cfg.TLS.LegoDNSProvider, defaultCfg.TLS.LegoDNSProvider, yellow, green)
	dumpField("  lego_cert_path", cfg.TLS.LegoCertPath, defaultCfg.TLS.LegoCertPath, yellow, green)
	dumpField("  lego_key_path", cfg.TLS.LegoKeyPath, defaultCfg.TLS.LegoKeyPath, yellow, green)
	dumpField("  lego_ca_dir_url", cfg.TLS.LegoCADirURL, defaultCfg.TLS.LegoCADirURL, yellow, green)

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactSecret redacts a secret value if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}
