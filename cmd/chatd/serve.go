// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/chatd/internal/auth"
	"github.com/holomush/chatd/internal/config"
	"github.com/holomush/chatd/internal/identity"
	"github.com/holomush/chatd/internal/logging"
	"github.com/holomush/chatd/internal/observability"
	"github.com/holomush/chatd/internal/session"
	"github.com/holomush/chatd/internal/store"
	"github.com/holomush/chatd/internal/telnet"
)

// shutdownTimeout bounds the graceful stop of the observability server.
const shutdownTimeout = 5 * time.Second

var errNotListening = errors.New("not listening")

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Long: `Start the chat server. Auth records are kept in PostgreSQL when
database_url is set, and in memory otherwise.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// runServe runs the server until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}
	logger := logging.SetDefault("chatd", version, cfg.LogFormat, level)

	policy, err := auth.NewNamePolicy(cfg.Names.PolicyConfig())
	if err != nil {
		return err //nolint:wrapcheck // already coded
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	index, pool, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	registry := session.NewRegistry(session.WithLogger(logger))

	var (
		obsServer   *observability.Server
		connMetrics *observability.Metrics
		idMetrics   *identity.Metrics
		srv         *telnet.Server
	)
	if cfg.MetricsAddr != "" {
		opts := []observability.ServerOption{
			observability.WithLogger(logger),
			observability.WithReadinessCheck("line_server", func(context.Context) error {
				if srv == nil || srv.Addr() == "" {
					return errNotListening
				}
				return nil
			}),
		}
		if pool != nil {
			opts = append(opts, observability.WithReadinessCheck("database", func(ctx context.Context) error {
				return pool.Ping(ctx)
			}))
		}
		obsServer = observability.NewServer(cfg.MetricsAddr, opts...)
		connMetrics = obsServer.Metrics()
		idMetrics = identity.NewMetrics(obsServer.Registerer())
		idMetrics.SetRegisteredRecords(index.Len())
	}

	protocol, err := identity.NewProtocol(policy, index, registry,
		identity.WithMetrics(idMetrics),
		identity.WithLogger(logger),
	)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("component", "identity").Wrap(err)
	}

	srv, err = telnet.NewServer(cfg.ListenAddr, protocol, registry,
		telnet.WithMetrics(connMetrics),
		telnet.WithLogger(logger),
	)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").With("component", "line server").Wrap(err)
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVE_INIT_FAILED").With("component", "observability").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	logger.InfoContext(ctx, "chatd starting",
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"persistent", cfg.DatabaseURL != "",
		"registered_names", index.Len(),
	)

	if err := srv.Run(ctx); err != nil {
		return err //nolint:wrapcheck // already coded
	}
	logger.Info("shutdown complete")
	return nil
}

// openIndex builds the auth index. With a database configured the index is
// backed by PostgreSQL and the returned pool must be closed by the caller;
// otherwise the pool is nil.
func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.Index, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("database_url not set, auth records will not survive a restart")
		return auth.NewIndex(), nil, nil
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, cfg.Database.ConnectAttempts)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // already coded
	}

	index, err := auth.NewIndexWithStore(store.NewCredentialRepository(pool))
	if err != nil {
		pool.Close()
		return nil, nil, oops.Code("SERVE_INIT_FAILED").With("component", "auth index").Wrap(err)
	}
	if err := index.Load(ctx); err != nil {
		pool.Close()
		return nil, nil, err //nolint:wrapcheck // already coded
	}
	return index, pool, nil
}

// monitorServerErrors cancels the context when a server reports an error.
// It exits when an error is received, the channel is closed, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
