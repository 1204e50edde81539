// ABOUTME: Configuration loading and parsing for coven-sync
// ABOUTME: Supports YAML files with environment variable expansion, defaults and duration parsing

package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "COVEN_SYNC_CONFIG"

// Config represents the complete coven-sync configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// BaseURL prefixes signed object URLs. Defaults to http://<http_addr>.
	BaseURL string `yaml:"base_url"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig selects the persistence backend
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite drivers
	DSN    string `yaml:"dsn"`  // postgres
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Root          string        `yaml:"root"`
	Bucket        string        `yaml:"bucket"`
	SigningSecret string        `yaml:"signing_secret"`
	SignedURLTTL  time.Duration `yaml:"-"`

	SignedURLTTLRaw string `yaml:"signed_url_ttl"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SecretsConfig holds integration secret storage configuration
type SecretsConfig struct {
	Path      string `yaml:"path"`
	KeyPrefix string `yaml:"key_prefix"`
	// EncryptionKey is a base64 32-byte key. Empty stores values in the clear.
	EncryptionKey string `yaml:"encryption_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the config path from COVEN_SYNC_CONFIG, falling back
// to $XDG_CONFIG_HOME/coven-sync/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(configHome(), "coven-sync", "config.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8088"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://" + c.Server.HTTPAddr
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver != DriverPostgres && c.Database.Path == "" {
		c.Database.Path = filepath.Join(dataHome(), "coven-sync", "sync.db")
	}
	c.Database.Path = expandHome(c.Database.Path)

	if c.Storage.Root == "" {
		c.Storage.Root = filepath.Join(dataHome(), "coven-sync", "objects")
	}
	c.Storage.Root = expandHome(c.Storage.Root)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "audio"
	}
	if c.Storage.SignedURLTTL == 0 {
		c.Storage.SignedURLTTL = 900 * time.Second
	}

	if c.Secrets.Path == "" {
		c.Secrets.Path = filepath.Join(dataHome(), "coven-sync", "secrets.toml")
	}
	c.Secrets.Path = expandHome(c.Secrets.Path)
	if c.Secrets.KeyPrefix == "" {
		c.Secrets.KeyPrefix = "integration-secrets"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverSQLite3:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver %q", c.Database.Driver)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, sqlite3, postgres", c.Database.Driver)
	}

	if c.Storage.SignedURLTTL < 0 {
		return fmt.Errorf("storage.signed_url_ttl must be positive")
	}

	if c.Storage.SigningSecret != "" && c.Storage.SigningSecret == c.Auth.JWTSecret {
		return fmt.Errorf("storage.signing_secret must differ from auth.jwt_secret")
	}

	if c.Secrets.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Secrets.EncryptionKey)
		if err != nil {
			return fmt.Errorf("secrets.encryption_key is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("secrets.encryption_key must decode to 32 bytes, got %d", len(key))
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Storage.SignedURLTTLRaw != "" {
		d, err := time.ParseDuration(cfg.Storage.SignedURLTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing signed_url_ttl %q: %w", cfg.Storage.SignedURLTTLRaw, err)
		}
		cfg.Storage.SignedURLTTL = d
	}
	return nil
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
