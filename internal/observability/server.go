// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessCheck returns nil when the component it watches can serve clients.
type ReadinessCheck func(ctx context.Context) error

// readinessTimeout bounds one run of every readiness check.
const readinessTimeout = 2 * time.Second

// Metrics contains the connection-level Prometheus metrics for chatd.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionsTotal    prometheus.Counter
	ActiveConnections   prometheus.Gauge
	RequestsTotal       *prometheus.CounterVec
	ResponseWriteErrors prometheus.Counter
}

// NewMetrics creates and registers the connection metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatd_connections_total",
				Help: "Total number of accepted client connections",
			},
		),
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatd_connections_active",
				Help: "Number of currently connected clients",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatd_requests_total",
				Help: "Total number of client requests by type",
			},
			[]string{"type"},
		),
		ResponseWriteErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatd_response_write_failures_total",
				Help: "Total number of messages that could not be written to a client",
			},
		),
	}

	reg.MustRegister(m.ConnectionsTotal)
	reg.MustRegister(m.ActiveConnections)
	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.ResponseWriteErrors)

	return m
}

// ConnectionOpened records an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Inc()
}

// ConnectionClosed records a closed connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// RequestReceived records one client request of the given type.
func (m *Metrics) RequestReceived(requestType string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(requestType).Inc()
}

// WriteFailed records a message that could not be delivered.
func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.ResponseWriteErrors.Inc()
}

// Server serves /metrics and the liveness and readiness probes.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	checks     []namedCheck
	logger     *slog.Logger
	running    atomic.Bool
}

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReadinessCheck adds a check that must pass for /healthz/readiness to
// report ready. Checks run in the order they were added.
func WithReadinessCheck(name string, check ReadinessCheck) ServerOption {
	return func(s *Server) {
		if check != nil {
			s.checks = append(s.checks, namedCheck{name: name, check: check})
		}
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

// NewServer creates a server that will listen on addr ("host:port").
// Its registry carries the Go and process collectors and the connection
// metrics; other packages add theirs through Registerer.
func NewServer(addr string, opts ...ServerOption) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the connection metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registerer returns the registry other packages register their metrics with.
func (s *Server) Registerer() prometheus.Registerer {
	return s.registry
}

// Start begins serving. The returned channel receives an error if the HTTP
// server fails after Start returns, and is closed when it stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down. Stopping a server that is not
// running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown observability server").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may have gone away
	w.Write([]byte("ok\n"))
}

// handleReadiness reports 200 when every check passes, otherwise 503 with
// one "name: error" line per failing check.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var failures []string
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", c.name, err))
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if len(failures) == 0 {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // client may have gone away
		w.Write([]byte("ok\n"))
		return
	}

	s.logger.DebugContext(ctx, "not ready", "failures", failures)
	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // client may have gone away
	w.Write([]byte("not ready\n" + strings.Join(failures, "\n") + "\n"))
}
