// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package telnet provides the line-oriented TCP front end: JSON lines for
// programmatic clients and plain text commands for humans on telnet.
package telnet

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/chatd/internal/identity"
	"github.com/holomush/chatd/internal/observability"
	"github.com/holomush/chatd/internal/session"
)

// Server accepts client connections and runs a ConnectionHandler for each.
type Server struct {
	addr     string
	protocol *identity.Protocol
	registry *session.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
	handlers sync.WaitGroup
}

// ServerOption configures a Server during construction.
type ServerOption func(*Server)

// WithMetrics records connection metrics in m.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new server listening on addr once Run is called.
func NewServer(addr string, protocol *identity.Protocol, registry *session.Registry, opts ...ServerOption) (*Server, error) {
	if protocol == nil {
		return nil, oops.Errorf("identity protocol is required")
	}
	if registry == nil {
		return nil, oops.Errorf("session registry is required")
	}

	s := &Server{
		addr:     addr,
		protocol: protocol,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Addr returns the server's listen address, or "" before it is listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run accepts connections until ctx is cancelled, then waits for every
// connection handler to finish.
func (s *Server) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return oops.Code("TELNET_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("line server started", "addr", listener.Addr().String())

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		if err := listener.Close(); err != nil {
			s.logger.Debug("error closing listener", "error", err)
		}
	}()
	defer s.handlers.Wait()
	defer close(stop)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.logger.Info("line server stopped")
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return oops.Code("TELNET_ACCEPT_FAILED").Wrap(err)
		}

		handler := NewConnectionHandler(conn, s.protocol, s.registry, s.metrics, s.logger)
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			handler.Handle(ctx)
		}()
	}
}
