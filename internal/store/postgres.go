// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store persists auth records in PostgreSQL.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConnectAttempts is used when Connect is given zero attempts.
const DefaultConnectAttempts = 5

const (
	connectBackoffBase = 250 * time.Millisecond
	connectBackoffCap  = 5 * time.Second
)

// poolIface is the subset of *pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Connect opens a connection pool to databaseURL and verifies it with a ping.
// Unreachable databases are retried with exponential backoff, up to attempts
// tries in total.
func Connect(ctx context.Context, databaseURL string, attempts uint64) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if attempts == 0 {
		attempts = DefaultConnectAttempts
	}

	backoff := retry.NewExponential(connectBackoffBase)
	backoff = retry.WithCappedDuration(connectBackoffCap, backoff)
	backoff = retry.WithMaxRetries(attempts-1, backoff)

	var (
		pool  *pgxpool.Pool
		tries int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return oops.With("operation", "create pool").Wrap(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			slog.WarnContext(ctx, "database not reachable",
				"attempt", tries,
				"max_attempts", attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("operation", "connect to database").
			With("attempts", tries).
			Wrap(err)
	}
	return pool, nil
}
