// Package backend builds the configured Storage so callers do not care
// whether items live in memory, on disk, in Redis, in SQL or in a remote
// daemon.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-users/internal/config"
	"github.com/celerix-dev/celerix-users/internal/engine"
	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/internal/redisstore"
	"github.com/celerix-dev/celerix-users/internal/sqlstore"
	"github.com/celerix-dev/celerix-users/internal/vault"
	"github.com/celerix-dev/celerix-users/pkg/sdk"
)

// Backend is an opened Storage plus whatever must be released with it.
type Backend struct {
	sdk.Storage
	Kind      string
	Encrypted bool

	closers []func() error
}

// Close releases connections held by the backend.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// Open initializes the storage selected by cfg.Backend and wraps it in the
// vault when a key is configured.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.With("component", "backend", "backend", cfg.Backend, "origin", cfg.Origin)

	b := &Backend{Kind: cfg.Backend}
	switch cfg.Backend {
	case config.BackendMemory:
		b.Storage = engine.NewMemStore(cfg.Origin, nil, nil, cfg.QuotaBytes)

	case config.BackendFile:
		p, err := engine.NewPersistence(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		data, err := p.Load(cfg.Origin)
		if err != nil {
			// Corrupt file: start empty, the next write replaces it
			log.Warn("could not load stored items, starting empty", "error", err)
		}
		b.Storage = engine.NewMemStore(cfg.Origin, data, p, cfg.QuotaBytes)

	case config.BackendRedis:
		rdb, err := redisstore.Connect(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			URL:      cfg.RedisURL,
		})
		if err != nil {
			return nil, err
		}
		s := redisstore.New(rdb, cfg.Origin)
		b.Storage = s
		b.closers = append(b.closers, s.Close)

	case config.BackendSQL:
		s, err := sqlstore.Open(ctx, cfg.SQLDriver, cfg.SQLDSN, cfg.Origin)
		if err != nil {
			return nil, err
		}
		b.Storage = s
		b.closers = append(b.closers, s.Close)

	case config.BackendRemote:
		client, err := sdk.Dial(cfg.StoreAddr, sdk.ClientOptions{DisableTLS: cfg.DisableTLS, Logger: log})
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", cfg.StoreAddr, err)
		}
		b.Storage = client
		b.closers = append(b.closers, client.Close)

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.VaultKey != "" {
		key, err := vault.ParseKey(cfg.VaultKey)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Storage = vault.Wrap(b.Storage, key)
		b.Encrypted = true
	}

	log.Info("storage opened", "encrypted", b.Encrypted)
	return b, nil
}
