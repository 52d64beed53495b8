// Package app wires the backend, session, feed, cache and events together
// from a Config.
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jlym/minix/internal/cache"
	"github.com/jlym/minix/internal/config"
	"github.com/jlym/minix/internal/events"
	"github.com/jlym/minix/internal/feed"
	"github.com/jlym/minix/internal/postgres"
	s "github.com/jlym/minix/internal/server"
	"github.com/jlym/minix/internal/session"
	"github.com/jlym/minix/internal/storage"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  s.Server
	Session *session.Provider
	Feed    *feed.Assembler

	// Names and Events are nil when Redis or NATS are not configured.
	Names  *cache.NameCache
	Events *events.NATSPublisher

	closers []func()
}

func NewLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func PGOptions(cfg *config.Config) *postgres.ConnStringOptions {
	return &postgres.ConnStringOptions{
		Host:     cfg.PGHost,
		Port:     cfg.PGPort,
		UserName: cfg.PGUser,
		Password: cfg.PGPassword,
	}
}

func OpenServer(ctx context.Context, cfg *config.Config) (s.Server, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		server, err := postgres.NewPGServer(ctx, PGOptions(cfg))
		if err != nil {
			return nil, err
		}
		return server, nil
	case config.BackendSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o700); err != nil {
				return nil, errors.Wrapf(err, "creating data dir failed, path=\"%s\"", cfg.SQLitePath)
			}
		}
		server, err := storage.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return server, nil
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	server, err := OpenServer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Server:  server,
		closers: []func(){server.Close},
	}

	provider := session.NewProvider(server, []byte(cfg.JWTSecret), session.NewFileTokenStore(cfg.SessionFile))
	provider.Logger = logger.With("component", "session")
	provider.Mailer = &session.LogMailer{Logger: provider.Logger}
	a.Session = provider

	assembler := feed.NewAssembler(server)
	assembler.Session = provider
	assembler.Logger = logger.With("component", "feed")
	assembler.Concurrency = cfg.FeedConcurrency
	a.Feed = assembler

	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.WarnContext(ctx, "running without name cache", "error", err)
		} else {
			a.Names = cache.NewNameCache(client, assembler.Names)
			a.Names.Logger = logger.With("component", "cache")
			assembler.Names = a.Names
			a.closers = append(a.closers, func() { client.Close() })
		}
	}

	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL)
		if err != nil {
			logger.WarnContext(ctx, "running without events", "error", err)
		} else {
			a.Events = publisher
			assembler.Publisher = publisher
			a.closers = append(a.closers, publisher.Close)
		}
	}

	return a, nil
}

// Restore signs the stored session back in. A missing or expired session is
// not an error.
func (a *App) Restore(ctx context.Context) string {
	identity, err := a.Session.Restore(ctx)
	if err != nil && session.ReasonOf(err) != session.ReasonNotSignedIn {
		a.Logger.WarnContext(ctx, "restoring session failed", "error", err)
	}
	return identity
}

// SignOut ends the session and drops the feed view state.
func (a *App) SignOut(ctx context.Context) error {
	err := a.Session.SignOut(ctx)
	a.Feed.Reset()
	return err
}

// Rename changes the signed in account's display name and drops its cached
// copy.
func (a *App) Rename(ctx context.Context, displayName string) (*s.Account, error) {
	account, err := a.Session.UpdateDisplayName(ctx, displayName)
	if err != nil {
		return nil, err
	}
	if a.Names != nil {
		if err := a.Names.Invalidate(ctx, account.AccountID); err != nil {
			a.Logger.WarnContext(ctx, "invalidating cached name failed", "error", err)
		}
	}
	return account, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
