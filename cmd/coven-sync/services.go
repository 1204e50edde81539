// ABOUTME: Builds the storage, object, session and integration services from configuration
// ABOUTME: Shared by serve and the one-shot subcommands

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/coven-sync/internal/config"
	"github.com/2389/coven-sync/internal/conversation"
	"github.com/2389/coven-sync/internal/integration"
	"github.com/2389/coven-sync/internal/kv"
	"github.com/2389/coven-sync/internal/objects"
	"github.com/2389/coven-sync/internal/session"
	"github.com/2389/coven-sync/internal/store"
	"github.com/2389/coven-sync/internal/upload"
)

type services struct {
	backend       *store.SQLStore
	conversations *conversation.Repository
	objects       *objects.FSStore
	secrets       *integration.Store
	verifier      *session.Verifier
	cfg           *config.Config
	logger        *slog.Logger
}

func openServices(cfg *config.Config, logger *slog.Logger) (*services, error) {
	backend, err := store.Open(store.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	svc := &services{
		backend:       backend,
		conversations: conversation.NewRepository(backend, logger),
		cfg:           cfg,
		logger:        logger,
	}

	if cfg.Storage.SigningSecret != "" {
		svc.objects, err = objects.NewFSStore(objects.Options{
			Root:    cfg.Storage.Root,
			Bucket:  cfg.Storage.Bucket,
			BaseURL: cfg.Server.BaseURL,
			Secret:  []byte(cfg.Storage.SigningSecret),
			Logger:  logger,
		})
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("opening object storage: %w", err)
		}
	}

	key, err := kv.ParseKey(cfg.Secrets.EncryptionKey)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("parsing secrets.encryption_key: %w", err)
	}
	fileStore, err := kv.NewFileStore(cfg.Secrets.Path, key, logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("opening secrets store: %w", err)
	}
	svc.secrets = integration.NewStore(fileStore, cfg.Secrets.KeyPrefix, logger)

	if cfg.Auth.JWTSecret != "" {
		svc.verifier = session.NewVerifier([]byte(cfg.Auth.JWTSecret))
	}

	return svc, nil
}

// pipeline returns an upload pipeline bound to sessions.
func (s *services) pipeline(sessions session.Provider) (*upload.Pipeline, error) {
	if s.objects == nil {
		return nil, errors.New("storage.signing_secret is required for audio uploads")
	}
	p := upload.NewPipeline(sessions, s.objects, s.backend, s.logger)
	p.SetSignedURLTTL(s.cfg.Storage.SignedURLTTL)
	return p, nil
}

func (s *services) Close() error {
	return s.backend.Close()
}
