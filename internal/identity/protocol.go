// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package identity implements the identity-change protocol: renaming a
// connection and claiming a name with a credential.
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/chatd/internal/auth"
	"github.com/holomush/chatd/internal/session"
	"github.com/holomush/chatd/pkg/errutil"
)

var tracer = otel.Tracer("chatd/identity")

// Protocol arbitrates identity changes for every connection of a server.
//
// All changes run under one lock, so the checks a request makes (name in use,
// name registered) still hold when it renames the client or registers the
// name. Two connections racing for the same unregistered name can never both
// register it. Notices to connections are sent only after the lock is
// released.
type Protocol struct {
	mu      sync.Mutex
	policy  *auth.NamePolicy
	creds   Credentials
	dir     Directory
	renamer Renamer
	metrics *Metrics
	logger  *slog.Logger
}

// ProtocolOption configures a Protocol during construction.
type ProtocolOption func(*Protocol)

// WithRenamer replaces the default NameChanger.
func WithRenamer(r Renamer) ProtocolOption {
	return func(p *Protocol) {
		p.renamer = r
	}
}

// WithMetrics records outcomes in m.
func WithMetrics(m *Metrics) ProtocolOption {
	return func(p *Protocol) {
		p.metrics = m
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) ProtocolOption {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProtocol creates a Protocol. Returns an error if a required dependency is nil.
func NewProtocol(policy *auth.NamePolicy, creds Credentials, dir Directory, opts ...ProtocolOption) (*Protocol, error) {
	if policy == nil {
		return nil, oops.Errorf("name policy is required")
	}
	if creds == nil {
		return nil, oops.Errorf("credentials are required")
	}
	if dir == nil {
		return nil, oops.Errorf("directory is required")
	}

	p := &Protocol{
		policy: policy,
		creds:  creds,
		dir:    dir,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.renamer == nil {
		nc, err := NewNameChanger(policy, creds, dir, p.logger)
		if err != nil {
			return nil, err
		}
		p.renamer = nc
	}
	return p, nil
}

// Authenticate claims name for c with credentialHash.
func (p *Protocol) Authenticate(ctx context.Context, c *session.Client, name, credentialHash string) Response {
	return p.Handle(ctx, c, Request{Kind: KindAuthenticate, Name: name, CredentialHash: credentialHash})
}

// Rename changes c's display name without authenticating.
func (p *Protocol) Rename(ctx context.Context, c *session.Client, name string) Response {
	return p.Handle(ctx, c, Request{Kind: KindRename, Name: name})
}

// Handle runs req for c to completion and returns its single response.
func (p *Protocol) Handle(ctx context.Context, c *session.Client, req Request) Response {
	ctx, span := tracer.Start(ctx, "identity.change",
		trace.WithAttributes(
			attribute.String("identity.kind", req.Kind.String()),
			attribute.String("conn.id", c.ID().String()),
		),
	)
	defer span.End()

	var (
		resp    Response
		outcome string
		err     error
		out     Outbox
	)
	switch req.Kind {
	case KindAuthenticate:
		resp, outcome, err = p.authenticate(ctx, c, req.Name, req.CredentialHash, &out)
	case KindRename:
		resp, outcome, err = p.rename(ctx, c, req.Name, &out)
	default:
		resp = Response{Message: MsgUnknownRequest}
		outcome = OutcomeUnknownRequest
		err = oops.Code(CodeUnknownRequest).With("kind", int(req.Kind)).Errorf("unknown request kind")
	}

	// The lock is released; notices may now block on slow connections
	// without holding up anyone else's identity change.
	out.deliver(ctx, p.dir, p.logger)

	span.SetAttributes(attribute.String("identity.outcome", outcome))
	p.metrics.record(req.Kind, outcome)

	attrs := []any{
		"event", "identity_change",
		"kind", req.Kind.String(),
		"conn_id", c.ID().String(),
		"name", req.Name,
		"outcome", outcome,
	}
	switch {
	case err == nil:
		p.logger.InfoContext(ctx, "identity changed", attrs...)
	case outcome == OutcomeRegisterFailed || outcome == OutcomeRegistrationConflict:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		errutil.LogError(ctx, p.logger, "identity change failed", err, attrs...)
	default:
		p.logger.InfoContext(ctx, "identity change rejected", append(attrs, "code", errutil.Code(err))...)
	}
	return resp
}

func (p *Protocol) authenticate(ctx context.Context, c *session.Client, name, credentialHash string, out *Outbox) (Response, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.policy.ValidSyntax(name) || p.dir.NameInUse(name, c.ID()) {
		return Response{Message: MsgInvalidName}, OutcomeInvalidName, ErrInvalidName(name)
	}
	if auth.IsGuestName(name) {
		return Response{Message: MsgGuestName}, OutcomeGuestName, ErrGuestName(name)
	}

	if p.creds.IsRegistered(name) {
		stored, _ := p.creds.Lookup(name)
		if !auth.CredentialsMatch(stored, credentialHash) {
			return Response{Message: MsgCredentialMismatch}, OutcomeCredentialMismatch,
				oops.Code(CodeCredentialMismatch).With("name", name).Errorf("credential mismatch")
		}

		prev := c.Snapshot()
		c.MakeAuthenticated(credentialHash)
		if err := p.renamer.Rename(ctx, c, name, out); err != nil {
			c.Restore(prev)
			resp, outcome := renameRejection(err)
			return resp, outcome, err
		}
		return Response{Success: true}, OutcomeAuthenticated, nil
	}

	// The rename must be accepted before the credential is stored, so a
	// rejected rename never leaves a registered but unassigned name.
	prev := c.Snapshot()
	if err := p.renamer.Rename(ctx, c, name, out); err != nil {
		resp, outcome := renameRejection(err)
		return resp, outcome, err
	}

	if err := p.creds.Register(ctx, name, credentialHash); err != nil {
		if errutil.HasCode(err, auth.CodeNameRegistered) {
			p.revert(c, name, prev, out)
			return Response{Message: MsgCredentialMismatch}, OutcomeRegistrationConflict, err
		}
		return Response{Message: MsgRegisterFailed}, OutcomeRegisterFailed,
			oops.Code(CodeRegisterFailed).With("name", name).Wrap(err)
	}

	c.MakeAuthenticated(credentialHash)
	return Response{Message: name, Success: true}, OutcomeRegistered, nil
}

func (p *Protocol) rename(ctx context.Context, c *session.Client, name string, out *Outbox) (Response, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.renamer.Rename(ctx, c, name, out); err != nil {
		resp, outcome := renameRejection(err)
		return resp, outcome, err
	}
	return Response{Message: name, Success: true}, OutcomeRenamed, nil
}

// revert undoes a rename to name after a registration conflict and queues
// the notices announcing it.
func (p *Protocol) revert(c *session.Client, name string, prev session.Snapshot, out *Outbox) {
	c.Restore(prev)
	if prev.Name == name {
		return
	}
	out.Notify(c, IdentityNotice{Former: name, Identity: prev.Name})
	out.Broadcast(c.ID(), RenameNotice{Former: name, Identity: prev.Name})
}

// renameRejection maps a Renamer error to the response the client sees.
func renameRejection(err error) (Response, string) {
	switch errutil.Code(err) {
	case CodeGuestName:
		return Response{Message: MsgGuestName}, OutcomeGuestName
	case CodeNameRegistered:
		return Response{Message: MsgNameRegistered}, OutcomeNameRegistered
	default:
		return Response{Message: MsgInvalidName}, OutcomeInvalidName
	}
}
