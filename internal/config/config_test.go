// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, durations and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9000"
  base_url: "https://sync.example.com/"

database:
  driver: "postgres"
  dsn: "postgres://sync@localhost/sync?sslmode=disable"

storage:
  root: "/var/lib/coven-sync/objects"
  bucket: "voice"
  signing_secret: "objects-secret"
  signed_url_ttl: "5m"

auth:
  jwt_secret: "jwt-secret"

secrets:
  path: "/var/lib/coven-sync/secrets.toml"
  key_prefix: "hooks"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9000")
	}
	if cfg.Server.BaseURL != "https://sync.example.com" {
		t.Errorf("Server.BaseURL = %q, want trailing slash trimmed", cfg.Server.BaseURL)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverPostgres)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty for postgres", cfg.Database.Path)
	}
	if cfg.Storage.Bucket != "voice" {
		t.Errorf("Storage.Bucket = %q, want %q", cfg.Storage.Bucket, "voice")
	}
	if cfg.Storage.SignedURLTTL != 5*time.Minute {
		t.Errorf("Storage.SignedURLTTL = %v, want %v", cfg.Storage.SignedURLTTL, 5*time.Minute)
	}
	if cfg.Auth.JWTSecret != "jwt-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "jwt-secret")
	}
	if cfg.Secrets.KeyPrefix != "hooks" {
		t.Errorf("Secrets.KeyPrefix = %q, want %q", cfg.Secrets.KeyPrefix, "hooks")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := Load(writeConfig(t, "auth:\n  jwt_secret: x\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8088" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.BaseURL != "http://127.0.0.1:8088" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Database.Path != "/data/coven-sync/sync.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Storage.Root != "/data/coven-sync/objects" {
		t.Errorf("Storage.Root = %q", cfg.Storage.Root)
	}
	if cfg.Storage.Bucket != "audio" {
		t.Errorf("Storage.Bucket = %q", cfg.Storage.Bucket)
	}
	if cfg.Storage.SignedURLTTL != 900*time.Second {
		t.Errorf("Storage.SignedURLTTL = %v, want 900s", cfg.Storage.SignedURLTTL)
	}
	if cfg.Secrets.Path != "/data/coven-sync/secrets.toml" {
		t.Errorf("Secrets.Path = %q", cfg.Secrets.Path)
	}
	if cfg.Secrets.KeyPrefix != "integration-secrets" {
		t.Errorf("Secrets.KeyPrefix = %q", cfg.Secrets.KeyPrefix)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SYNC_JWT", "jwt-from-env")
	t.Setenv("TEST_SYNC_DSN", "postgres://env/db")

	cfg, err := Load(writeConfig(t, `
database:
  driver: postgres
  dsn: "${TEST_SYNC_DSN}"
auth:
  jwt_secret: "${TEST_SYNC_JWT}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "jwt-from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "jwt-from-env")
	}
	if cfg.Database.DSN != "postgres://env/db" {
		t.Errorf("Database.DSN = %q, want %q", cfg.Database.DSN, "postgres://env/db")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	cfg, err := Load(writeConfig(t, `
storage:
  signing_secret: "${UNSET_VAR_FOR_TEST}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Unset env vars should expand to empty string
	if cfg.Storage.SigningSecret != "" {
		t.Errorf("Storage.SigningSecret = %q, want empty string for unset env var", cfg.Storage.SigningSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  http_addr: [unclosed\n"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  signed_url_ttl: \"fortnight\"\n"))
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "signed_url_ttl") {
		t.Errorf("error = %v, want mention of signed_url_ttl", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown driver",
			content: "database:\n  driver: mysql\n",
			wantErr: "database.driver",
		},
		{
			name:    "postgres without dsn",
			content: "database:\n  driver: postgres\n",
			wantErr: "database.dsn",
		},
		{
			name:    "tailscale without hostname",
			content: "tailscale:\n  enabled: true\n",
			wantErr: "tailscale.hostname",
		},
		{
			name:    "negative ttl",
			content: "storage:\n  signed_url_ttl: \"-1s\"\n",
			wantErr: "signed_url_ttl",
		},
		{
			name:    "short encryption key",
			content: "secrets:\n  encryption_key: \"c2hvcnQ=\"\n",
			wantErr: "32 bytes",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: verbose\n",
			wantErr: "logging.level",
		},
		{
			name:    "shared signing secret",
			content: "storage:\n  signing_secret: same-secret-value\nauth:\n  jwt_secret: same-secret-value\n",
			wantErr: "storage.signing_secret must differ",
		},
		{
			name:    "distinct signing secret",
			content: "storage:\n  signing_secret: object-secret\nauth:\n  jwt_secret: session-secret\n",
		},
		{
			name:    "sqlite3 driver",
			content: "database:\n  driver: sqlite3\n  path: /tmp/x.db\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Parse() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TEST_VAR_A}", "alpha"},
		{"pre-${TEST_VAR_A}-post", "pre-alpha-post"},
		{"${TEST_VAR_MISSING_XYZ}", ""},
		{"$TEST_VAR_A", "$TEST_VAR_A"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	if got := DefaultPath(); got != "/cfg/coven-sync/config.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv(EnvConfigPath, "/etc/coven-sync.yaml")
	if got := DefaultPath(); got != "/etc/coven-sync.yaml" {
		t.Errorf("DefaultPath() = %q, want env override", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/x/y.db"); got != filepath.Join(home, "x", "y.db") {
		t.Errorf("expandHome() = %q", got)
	}
	if got := expandHome(":memory:"); got != ":memory:" {
		t.Errorf("expandHome(:memory:) = %q", got)
	}
}
