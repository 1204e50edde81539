// ABOUTME: serve subcommand: runs the HTTP API on a local or tailnet listener
// ABOUTME: The listener and graceful shutdown run under one errgroup

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"

	"github.com/2389/coven-sync/internal/config"
	"github.com/2389/coven-sync/internal/httpapi"
	"github.com/2389/coven-sync/internal/session"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context())
		},
	}
}

func (c *cli) runServe(ctx context.Context) error {
	cfg := c.cfg

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	cyan.Fprint(c.out, banner)
	gray.Fprintf(c.out, "    version: %s\n\n", version)

	svc, err := openServices(cfg, c.logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if svc.verifier == nil {
		return errors.New("auth.jwt_secret is required to serve")
	}
	pipeline, err := svc.pipeline(session.ContextProvider{})
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Options{
		Conversations: svc.conversations,
		Uploads:       pipeline,
		Secrets:       svc.secrets,
		Objects:       svc.objects,
		Verifier:      svc.verifier,
		Logger:        c.logger,
	})
	defer api.Close()

	ln, cleanup, err := c.listen(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	green.Fprint(c.out, "    ▶ ")
	fmt.Fprintf(c.out, "Config:    %s\n", c.configPath)
	green.Fprint(c.out, "    ▶ ")
	fmt.Fprintf(c.out, "Database:  %s\n", cfg.Database.Driver)
	green.Fprint(c.out, "    ▶ ")
	fmt.Fprintf(c.out, "HTTP:      %s\n", ln.Addr())
	if cfg.Tailscale.Enabled {
		green.Fprint(c.out, "    ▶ ")
		fmt.Fprint(c.out, "Tailscale: ")
		cyan.Fprint(c.out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(c.out, " (ephemeral)")
		}
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out)

	c.logger.Info("starting coven-sync",
		"config", c.configPath,
		"addr", ln.Addr().String(),
		"driver", cfg.Database.Driver,
	)

	srv := &http.Server{
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// listen opens the HTTP listener, on the tailnet when tailscale is enabled.
func (c *cli) listen(ctx context.Context, cfg *config.Config) (net.Listener, func(), error) {
	if !cfg.Tailscale.Enabled {
		ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on %s: %w", cfg.Server.HTTPAddr, err)
		}
		return ln, func() {}, nil
	}

	tsCfg := cfg.Tailscale
	stateDir := tsCfg.StateDir
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
		}
		stateDir = filepath.Join(home, ".local", "share", "coven-sync", "tailscale")
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey := tsCfg.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}

	ts := &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	c.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := ts.Up(ctx)
	if err != nil {
		_ = ts.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	if status.Self != nil {
		c.logger.Info("tailscale node ready", "hostname", tsCfg.Hostname, "dns_name", status.Self.DNSName)
	}

	ln, err := ts.Listen("tcp", ":80")
	if err != nil {
		_ = ts.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, func() { _ = ts.Close() }, nil
}
