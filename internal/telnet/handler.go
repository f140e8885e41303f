// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package telnet

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/chatd/internal/auth"
	"github.com/holomush/chatd/internal/identity"
	"github.com/holomush/chatd/internal/logging"
	"github.com/holomush/chatd/internal/observability"
	"github.com/holomush/chatd/internal/session"
)

// DefaultWriteTimeout bounds a single write to a client.
const DefaultWriteTimeout = 5 * time.Second

// outboundQueueSize is how many encoded lines may wait for a slow client
// before further messages to it are dropped.
const outboundQueueSize = 100

// ConnectionHandler handles a single client connection.
//
// A connection speaks plain text until it sends its first JSON object; from
// then on every message to it is a JSON line.
type ConnectionHandler struct {
	conn         net.Conn
	reader       *bufio.Reader
	protocol     *identity.Protocol
	registry     *session.Registry
	metrics      *observability.Metrics
	logger       *slog.Logger
	writeTimeout time.Duration

	client   *session.Client
	jsonMode atomic.Bool
	quitting bool

	outbound   chan []byte
	stopping   chan struct{}
	writerDone chan struct{}
}

// NewConnectionHandler registers conn as a new guest connection and returns
// its handler.
func NewConnectionHandler(
	conn net.Conn,
	protocol *identity.Protocol,
	registry *session.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *ConnectionHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &ConnectionHandler{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		protocol:     protocol,
		registry:     registry,
		metrics:      metrics,
		writeTimeout: DefaultWriteTimeout,
		outbound:     make(chan []byte, outboundQueueSize),
		stopping:     make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	h.client = registry.Connect(conn.RemoteAddr().String(), h)
	h.logger = logger.With("conn_id", h.client.ID().String())
	return h
}

// Client returns the connection's client state.
func (h *ConnectionHandler) Client() *session.Client {
	return h.client
}

// Send queues one message for the client and never blocks. It is safe for
// concurrent use. A client whose queue is full loses the message.
func (h *ConnectionHandler) Send(msg any) error {
	var (
		b   []byte
		err error
	)
	if h.jsonMode.Load() {
		b, err = encodeJSON(msg)
	} else {
		b, err = encodeText(msg)
	}
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}

	select {
	case <-h.stopping:
		return oops.Code("TELNET_CONN_CLOSED").Errorf("connection is closing")
	default:
	}

	select {
	case h.outbound <- append(b, '\n'):
		return nil
	default:
		h.metrics.WriteFailed()
		return oops.Code("TELNET_QUEUE_FULL").
			With("capacity", cap(h.outbound)).
			Errorf("outbound queue is full")
	}
}

// writeLoop writes queued lines until the handler stops, then flushes what
// is left under a single deadline. A failed write closes the connection.
func (h *ConnectionHandler) writeLoop() {
	defer close(h.writerDone)
	for {
		select {
		case b := <-h.outbound:
			if err := h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				h.writeFailed("set write deadline", err)
				return
			}
			if _, err := h.conn.Write(b); err != nil {
				h.writeFailed("write message", err)
				return
			}

		case <-h.stopping:
			if len(h.outbound) == 0 {
				return
			}
			if err := h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
				h.writeFailed("set flush deadline", err)
				return
			}
			for {
				select {
				case b := <-h.outbound:
					if _, err := h.conn.Write(b); err != nil {
						h.writeFailed("flush message", err)
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (h *ConnectionHandler) writeFailed(op string, err error) {
	h.metrics.WriteFailed()
	h.logger.Debug("failed to write to client", "operation", op, "error", err)
	// Unblocks the reader so Handle notices the dead connection.
	_ = h.conn.Close()
}

// Handle processes the connection until it closes, the client quits, or ctx
// is cancelled.
func (h *ConnectionHandler) Handle(ctx context.Context) {
	ctx = logging.ContextWithAttrs(ctx, slog.String("remote_addr", h.client.RemoteAddr()))

	h.metrics.ConnectionOpened()
	h.logger.InfoContext(ctx, "client connected", "name", h.client.Name())

	go h.writeLoop()

	defer func() {
		name := h.client.Name()
		h.registry.Disconnect(h.client.ID())
		h.registry.Broadcast(h.client.ID(), departure{Identity: name})
		close(h.stopping)
		<-h.writerDone
		if err := h.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			h.logger.Debug("error closing connection", "error", err)
		}
		h.metrics.ConnectionClosed()
		h.logger.InfoContext(ctx, "client disconnected", "name", name)
	}()

	h.send(identity.IdentityNotice{Identity: h.client.Name()})

	lineCh := make(chan string)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	// Closing the connection unblocks ReadString, so the reader always exits.
	go func() {
		for {
			line, err := h.reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				h.logger.DebugContext(ctx, "connection read error", "error", err)
			}
			return

		case line := <-lineCh:
			h.processLine(ctx, line)
			if h.quitting {
				return
			}
		}
	}
}

func (h *ConnectionHandler) processLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "{") {
		h.jsonMode.Store(true)
		h.processRequest(ctx, line)
		return
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "auth":
		h.metrics.RequestReceived(TypeAuthenticate)
		h.handleTextAuth(ctx, arg)
	case "nick":
		h.metrics.RequestReceived(TypeIdentityChange)
		h.handleIdentityChange(ctx, arg)
	case "who":
		h.metrics.RequestReceived(TypeWho)
		h.handleWho()
	case "say":
		h.metrics.RequestReceived(TypeMessage)
		h.handleMessage(arg)
	case "quit":
		h.metrics.RequestReceived(TypeQuit)
		h.handleQuit()
	default:
		h.send(errorMessage{Message: "Unknown command: " + cmd})
	}
}

func (h *ConnectionHandler) processRequest(ctx context.Context, line string) {
	req, err := decodeRequest(line)
	if err != nil {
		h.logger.Debug("malformed request", "error", err)
		h.send(errorMessage{Message: "Malformed request."})
		return
	}

	switch req.Type {
	case TypeAuthenticate:
		h.metrics.RequestReceived(req.Type)
		h.handleAuthenticate(ctx, req.Identity, req.Hash)
	case TypeIdentityChange:
		h.metrics.RequestReceived(req.Type)
		h.handleIdentityChange(ctx, req.Identity)
	case TypeWho:
		h.metrics.RequestReceived(req.Type)
		h.handleWho()
	case TypeMessage:
		h.metrics.RequestReceived(req.Type)
		h.handleMessage(req.Content)
	case TypeQuit:
		h.metrics.RequestReceived(req.Type)
		h.handleQuit()
	default:
		h.send(errorMessage{Message: "Unknown request type: " + req.Type})
	}
}

func (h *ConnectionHandler) handleAuthenticate(ctx context.Context, name, hash string) {
	resp := h.protocol.Authenticate(ctx, h.client, name, hash)
	h.send(authResult(resp))
}

func (h *ConnectionHandler) handleTextAuth(ctx context.Context, arg string) {
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		h.send(errorMessage{Message: "Usage: auth <name> <password>"})
		return
	}

	hash, err := auth.DeriveCredential(parts[0], parts[1])
	if err != nil {
		h.logger.Debug("credential derivation failed", "error", err)
		h.send(authResult(identity.Response{Message: identity.MsgCredentialMismatch}))
		return
	}
	h.handleAuthenticate(ctx, parts[0], hash)
}

func (h *ConnectionHandler) handleIdentityChange(ctx context.Context, name string) {
	resp := h.protocol.Rename(ctx, h.client, name)
	h.send(renameResult(resp))
}

func (h *ConnectionHandler) handleWho() {
	h.send(roomContents{Identities: h.registry.Names()})
}

func (h *ConnectionHandler) handleMessage(content string) {
	if content == "" {
		h.send(errorMessage{Message: "Say what?"})
		return
	}
	h.registry.Broadcast(ulid.ULID{}, chatMessage{Identity: h.client.Name(), Content: content})
}

func (h *ConnectionHandler) handleQuit() {
	h.send(goodbyeMessage{})
	h.quitting = true
}

// send queues msg for this client. Failures are logged, never surfaced.
func (h *ConnectionHandler) send(msg any) {
	if err := h.Send(msg); err != nil {
		h.logger.Debug("failed to send message to client", "error", err)
	}
}
