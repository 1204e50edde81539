// ABOUTME: Tests for the coven-sync command tree and logger
// ABOUTME: Runs subcommands in-process against a temp-dir SQLite config

package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-sync/internal/config"
	"github.com/2389/coven-sync/internal/session"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  driver: sqlite
  path: %q
storage:
  root: %q
  signing_secret: "object-secret"
auth:
  jwt_secret: "session-secret"
secrets:
  path: %q
logging:
  level: error
`, filepath.Join(dir, "sync.db"), filepath.Join(dir, "objects"), filepath.Join(dir, "secrets.toml"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := run(t, "--config", cfgPath, "token", "--owner", "owner-1")
	require.NoError(t, err)

	owner, err := session.NewVerifier([]byte("session-secret")).Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", owner)
}

func TestTokenCommandRequiresOwner(t *testing.T) {
	_, err := run(t, "--config", writeTestConfig(t), "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestConversationsListEmpty(t *testing.T) {
	out, err := run(t, "--config", writeTestConfig(t), "conversations", "list", "--owner", "owner-1")
	require.NoError(t, err)
	assert.Contains(t, out, "no conversations")
}

func TestUploadAndExport(t *testing.T) {
	cfgPath := writeTestConfig(t)
	clip := filepath.Join(t.TempDir(), "clip.ogg")
	require.NoError(t, os.WriteFile(clip, []byte("OggS"), 0644))

	out, err := run(t, "--config", cfgPath, "upload", clip, "--owner", "owner-1", "--conversation", "conv-1", "--duration-ms", "1200")
	require.NoError(t, err)
	assert.Contains(t, out, "owner-1/conv-1/")
	assert.Contains(t, out, "?token=")

	_, err = run(t, "--config", cfgPath, "export", "scout", "--owner", "owner-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conversation")
}

func TestSecretsSetAndShow(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := run(t, "--config", cfgPath, "secrets", "set", "--owner", "owner-1",
		"--webhook-url", "https://hooks.example.com", "--auth-type", "apiKey",
		"--api-key", "key-123456", "--username", "ignored")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "secrets", "show", "--owner", "owner-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"auth_type": "apiKey"`)
	assert.Contains(t, out, `"api_key": "******3456"`)
	assert.Contains(t, out, `"basic_username": null`)

	out, err = run(t, "--config", cfgPath, "secrets", "show", "--owner", "owner-1", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, out, `"api_key": "key-123456"`)
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)

	logger.Debug("hidden")
	logger.With("component", "store").WithGroup("req").Info("opened", "path", "/tmp/x.db")
	logger.Warn("slow", slog.Group("db", slog.Int("ms", 120)))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF opened")
	assert.Contains(t, out, "component=store")
	assert.Contains(t, out, "req.path=/tmp/x.db")
	assert.Contains(t, out, "WRN slow")
	assert.Contains(t, out, "db.ms=120")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
