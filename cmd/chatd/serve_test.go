// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/chatd/internal/config"
	"github.com/holomush/chatd/pkg/errutil"
)

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr: "127.0.0.1:0",
		LogFormat:  "json",
		LogLevel:   "error",
	}
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, testConfig())
	}()

	// Give the server a moment to bind before stopping it.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}

func TestRunServe_InvalidNamePolicy(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	cfg := testConfig()
	cfg.Names.Pattern = "(["

	err := runServe(context.Background(), cfg)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_POLICY")
}

func TestRunServe_ListenFailure(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	cfg := testConfig()
	cfg.ListenAddr = "127.0.0.1:-1"

	err := runServe(context.Background(), cfg)
	errutil.AssertErrorCode(t, err, "TELNET_LISTEN_FAILED")
}

func TestRunServe_WithObservability(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}

func TestMonitorServerErrors(t *testing.T) {
	t.Run("cancels on error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error, 1)
		errCh <- errors.New("listener failed")

		monitorServerErrors(ctx, cancel, errCh, "observability")
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("closed channel leaves context alone", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := make(chan error)
		close(errCh)

		monitorServerErrors(ctx, cancel, errCh, "observability")
		assert.NoError(t, ctx.Err())
	})

	t.Run("returns when context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		monitorServerErrors(ctx, cancel, make(chan error), "observability")
	})
}

func TestOpenIndex_InvalidDatabaseURL(t *testing.T) {
	cfg := testConfig()
	cfg.DatabaseURL = "postgres://%zz"

	_, _, err := openIndex(context.Background(), cfg, slog.New(slog.DiscardHandler))
	errutil.AssertErrorCode(t, err, "STORE_CONFIG_INVALID")
}

func TestOpenIndex_InMemory(t *testing.T) {
	index, pool, err := openIndex(context.Background(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.Zero(t, index.Len())
}
