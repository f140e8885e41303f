// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session tracks live connections and the identity each one displays.
package session

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"
)

// GuestPrefix is the prefix of server-assigned names.
const GuestPrefix = "guest"

// Registry is the server-wide set of live clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[ulid.ULID]*Client
	guestSeq uint64
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clients: make(map[ulid.ULID]*Client),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers a new connection under a fresh guest name.
func (r *Registry) Connect(remoteAddr string, sender Sender) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := r.nextGuestNameLocked()
	c := NewClient(NewID(), name, remoteAddr, sender)
	r.clients[c.id] = c
	return c
}

// nextGuestNameLocked returns the next guest name not displayed by any
// client. Caller must hold r.mu.
func (r *Registry) nextGuestNameLocked() string {
	for {
		r.guestSeq++
		name := GuestPrefix + strconv.FormatUint(r.guestSeq, 10)
		if !r.nameInUseLocked(name, ulid.ULID{}) {
			return name
		}
	}
}

// Disconnect removes a connection. It reports whether the connection was present.
func (r *Registry) Disconnect(id ulid.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		r.logger.Debug("disconnect called for unknown connection", "conn_id", id.String())
		return false
	}
	delete(r.clients, id)
	return true
}

// Get returns the client for id.
func (r *Registry) Get(id ulid.ULID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// NameInUse reports whether a client other than excluding currently displays
// name. The comparison is exact and case-sensitive.
func (r *Registry) NameInUse(name string, excluding ulid.ULID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nameInUseLocked(name, excluding)
}

func (r *Registry) nameInUseLocked(name string, excluding ulid.ULID) bool {
	for id, c := range r.clients {
		if id == excluding {
			continue
		}
		if c.Name() == name {
			return true
		}
	}
	return false
}

// List returns the live clients ordered by connection time.
func (r *Registry) List() []*Client {
	r.mu.RLock()
	result := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		result = append(result, c)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].id.Compare(result[j].id) < 0
	})
	return result
}

// Names returns the display names of the live clients, sorted.
func (r *Registry) Names() []string {
	clients := r.List()
	names := make([]string, 0, len(clients))
	for _, c := range clients {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends msg to every client except the one with ID except.
// Delivery failures are logged and counted; the count is returned.
func (r *Registry) Broadcast(except ulid.ULID, msg any) int {
	failures := 0
	for _, c := range r.List() {
		if c.id == except {
			continue
		}
		if err := c.Send(msg); err != nil {
			failures++
			r.logger.Debug("broadcast delivery failed",
				"conn_id", c.id.String(),
				"error", err,
			)
		}
	}
	return failures
}
