// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/chatd/internal/auth"
	"github.com/holomush/chatd/internal/session"
)

// Directory is the view of the live connections identity changes need.
type Directory interface {
	// NameInUse reports whether a connection other than excluding displays name.
	NameInUse(name string, excluding ulid.ULID) bool
	// Broadcast sends msg to every connection except except.
	Broadcast(except ulid.ULID, msg any) int
}

// Credentials is the view of the auth index identity changes need.
type Credentials interface {
	IsRegistered(name string) bool
	Lookup(name string) (string, bool)
	Register(ctx context.Context, name, credentialHash string) error
}

// Renamer applies a non-authenticating identity change, enforcing its own
// naming rules. Implementations must not change the client when they return
// an error, and queue their notices in out instead of sending them.
type Renamer interface {
	Rename(ctx context.Context, c *session.Client, newName string, out *Outbox) error
}

// NameChanger is the server's generic rename operation.
//
// A client may take any valid name that no other connection displays, except
// guest names and names registered to a credential the client has not
// authenticated with. Moving to an unregistered name drops authentication.
type NameChanger struct {
	policy *auth.NamePolicy
	dir    Directory
	creds  Credentials
	logger *slog.Logger
}

// NewNameChanger creates a NameChanger.
func NewNameChanger(policy *auth.NamePolicy, creds Credentials, dir Directory, logger *slog.Logger) (*NameChanger, error) {
	if policy == nil {
		return nil, oops.Errorf("name policy is required")
	}
	if creds == nil {
		return nil, oops.Errorf("credentials are required")
	}
	if dir == nil {
		return nil, oops.Errorf("directory is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NameChanger{policy: policy, dir: dir, creds: creds, logger: logger}, nil
}

// Rename changes c's display name to newName and queues the notices for the
// connections in out. With a nil out the notices are sent before Rename
// returns.
func (n *NameChanger) Rename(ctx context.Context, c *session.Client, newName string, out *Outbox) error {
	if out == nil {
		out = &Outbox{}
		defer out.deliver(ctx, n.dir, n.logger)
	}

	if !n.policy.ValidSyntax(newName) || n.dir.NameInUse(newName, c.ID()) {
		return ErrInvalidName(newName)
	}
	if auth.IsGuestName(newName) {
		return ErrGuestName(newName)
	}

	registered := n.creds.IsRegistered(newName)
	if registered {
		stored, _ := n.creds.Lookup(newName)
		if !c.IsAuthenticated() || !auth.CredentialsMatch(stored, c.Credential()) {
			return ErrNameRegistered(newName)
		}
	}

	old := c.SetName(newName)
	if !registered {
		c.ClearAuthentication()
	}

	out.Notify(c, IdentityNotice{Former: old, Identity: newName})
	if old != newName {
		out.Broadcast(c.ID(), RenameNotice{Former: old, Identity: newName})
	}
	return nil
}
