// ABOUTME: Entry point for coven-sync, the conversation sync and attachment upload server
// ABOUTME: Cobra command tree sharing config loading and logger setup

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/coven-sync/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ _____   _____ _ __        ___ _   _ _ __   ___
 / __/ _ \ \ / / _ \ '_ \ _____/ __| | | | '_ \ / __|
| (_| (_) \ V /  __/ | | |_____\__ \ |_| | | | | (__
 \___\___/ \_/ \___|_| |_|     |___/\__, |_| |_|\___|
                                    |___/
`

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	out        io.Writer
	errOut     io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "coven-sync",
		Short: "Conversation sync and attachment upload server",
		Long: `coven-sync persists per-agent conversation history, uploads recorded
audio with signed retrieval URLs, and keeps webhook integration secrets.

Config is read from --config, then $COVEN_SYNC_CONFIG, then
$XDG_CONFIG_HOME/coven-sync/config.yaml.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config file")

	root.AddCommand(
		newServeCmd(c),
		newTokenCmd(c),
		newConversationsCmd(c),
		newExportCmd(c),
		newUploadCmd(c),
		newSecretsCmd(c),
	)
	return root
}

func (c *cli) load() error {
	if c.configPath == "" {
		c.configPath = config.DefaultPath()
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg
	c.logger = setupLogger(cfg.Logging, c.errOut)
	slog.SetDefault(c.logger)
	return nil
}
