package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rbright/nexa/internal/api"
	"github.com/rbright/nexa/internal/api/repository"
	"github.com/rbright/nexa/internal/config"
)

// commandServe runs the feedback API without the voice daemon.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger, listen string) int {
	if listen = strings.TrimSpace(listen); listen != "" {
		cfg.Server.Listen = listen
	}

	in, err := newInterpreter(cfg.Interpreter)
	if err != nil {
		return r.fail(err)
	}

	repo, server, err := newAPIServer(ctx, logger, cfg.Server, in, nil)
	if err != nil {
		return r.fail(err)
	}
	defer func() { _ = repo.Close() }()

	logger.Info("feedback api starting", "listen", cfg.Server.Listen, "driver", cfg.Server.Driver)
	if err := server.ListenAndServe(ctx, cfg.Server.Listen); err != nil && !errors.Is(err, context.Canceled) {
		return r.fail(err)
	}
	return 0
}

// newAPIServer opens the feedback database and builds the HTTP service.
// states is nil outside the daemon, which disables the state feed.
func newAPIServer(ctx context.Context, logger *slog.Logger, cfg config.ServerConfig, suggester api.Suggester, states api.StateSource) (*repository.Repository, *api.Server, error) {
	repo, err := repository.Open(ctx, logger, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	server, err := api.New(logger, api.Options{
		Store:          repo,
		Suggester:      suggester,
		States:         states,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return repo, server, nil
}
