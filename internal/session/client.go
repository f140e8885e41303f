// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sender delivers a message to the remote end of a connection.
// Implementations encode msg for their wire format.
type Sender interface {
	Send(msg any) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(msg any) error

// Send calls f(msg).
func (f SenderFunc) Send(msg any) error { return f(msg) }

// Client is the identity state of one live connection.
//
// The name and authentication fields are written only by the identity
// protocol acting for this connection; other goroutines read them through
// the accessors.
type Client struct {
	id          ulid.ULID
	remoteAddr  string
	connectedAt time.Time
	sender      Sender

	mu            sync.RWMutex
	name          string
	authenticated bool
	credential    string
}

// NewClient creates an unauthenticated client displaying name.
func NewClient(id ulid.ULID, name, remoteAddr string, sender Sender) *Client {
	return &Client{
		id:          id,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now(),
		sender:      sender,
		name:        name,
	}
}

// ID returns the connection ID.
func (c *Client) ID() ulid.ULID { return c.id }

// RemoteAddr returns the peer address the connection was accepted from.
func (c *Client) RemoteAddr() string { return c.remoteAddr }

// ConnectedAt returns when the connection was accepted.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// Name returns the current display name.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName changes the display name and returns the previous one.
func (c *Client) SetName(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.name
	c.name = name
	return old
}

// IsAuthenticated reports whether the client has proven ownership of a name.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Credential returns the credential hash the client authenticated with,
// or "" if it is not authenticated.
func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// MakeAuthenticated marks the client authenticated with credentialHash.
func (c *Client) MakeAuthenticated(credentialHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = true
	c.credential = credentialHash
}

// ClearAuthentication drops the authenticated flag and credential.
func (c *Client) ClearAuthentication() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = false
	c.credential = ""
}

// Snapshot is a point-in-time copy of a client's identity.
type Snapshot struct {
	Name          string
	Authenticated bool
	Credential    string
}

// Snapshot returns the client's identity fields read under one lock.
func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Name: c.name, Authenticated: c.authenticated, Credential: c.credential}
}

// Restore resets the identity fields to s.
func (c *Client) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = s.Name
	c.authenticated = s.Authenticated
	c.credential = s.Credential
}

// Send delivers msg to the connection. A client without a sender drops it.
func (c *Client) Send(msg any) error {
	if c.sender == nil {
		return nil
	}
	return c.sender.Send(msg)
}
