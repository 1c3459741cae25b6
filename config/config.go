/*
Package config loads runtime settings and builds the logger.

SOURCES (later wins):
  1. Built-in defaults (setDefaults)
  2. Optional YAML file: config.yaml in . or ./config, or an explicit path
  3. Environment variables prefixed NUDA_, dots replaced by underscores
     (NUDA_SERVER_PORT, NUDA_AUTH_ADMIN_PASSWORD, ...)

  Command-line flags in cmd/server override the loaded values.

SEE ALSO:
  - logger.go: zap logger construction from LoggingConfig
  - cmd/server/main.go: Flag overrides
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAdminPassword is the first-run admin password when none is configured.
const DefaultAdminPassword = "nudapro-admin"

// Config holds all configuration values.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Table    TableConfig    `mapstructure:"table"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Report   ReportConfig   `mapstructure:"report"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TrustProxy     bool     `mapstructure:"trust_proxy"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig selects level (debug, info, warn, error), format (json,
// console) and an optional output file.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputFile string `mapstructure:"output_file"`
}

// TableConfig points at an optional YAML seed for the coefficient table.
type TableConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type AuthConfig struct {
	AdminPassword      string        `mapstructure:"admin_password"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	LoginRatePerMinute float64       `mapstructure:"login_rate_per_minute"`
	LoginBurst         int           `mapstructure:"login_burst"`
}

type ReportConfig struct {
	Locale  string   `mapstructure:"locale"`
	Contact []string `mapstructure:"contact"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("database.path", "nuda.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_file", "")
	v.SetDefault("table.seed_file", "")
	v.SetDefault("auth.admin_password", DefaultAdminPassword)
	v.SetDefault("auth.session_ttl", "12h")
	v.SetDefault("auth.login_rate_per_minute", 10)
	v.SetDefault("auth.login_burst", 5)
	v.SetDefault("report.locale", "es-ES")
	v.SetDefault("report.contact", []string{})
}

// Load reads configuration. An empty path searches config.yaml in . and
// ./config; a missing file is not an error, a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NUDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("invalid auth.session_ttl: %s", c.Auth.SessionTTL)
	}
	if c.Auth.LoginRatePerMinute <= 0 || c.Auth.LoginBurst <= 0 {
		return errors.New("auth.login_rate_per_minute and auth.login_burst must be positive")
	}
	return nil
}

// UsesDefaultAdminPassword reports whether the built-in admin password is active.
func (c *Config) UsesDefaultAdminPassword() bool {
	return c.Auth.AdminPassword == DefaultAdminPassword
}
