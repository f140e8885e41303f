// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Sender that keeps every message it is given.
type recorder struct {
	mu   sync.Mutex
	msgs []any
	err  error
}

func (r *recorder) Send(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) messages() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.msgs...)
}

func TestRegistry_ConnectAssignsGuestNames(t *testing.T) {
	reg := NewRegistry()

	first := reg.Connect("127.0.0.1:1000", nil)
	second := reg.Connect("127.0.0.1:1001", nil)

	assert.Equal(t, "guest1", first.Name())
	assert.Equal(t, "guest2", second.Name())
	assert.False(t, first.IsAuthenticated())
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_ConnectSkipsNamesInUse(t *testing.T) {
	reg := NewRegistry()
	squatter := reg.Connect("", nil)
	squatter.SetName("guest2")

	next := reg.Connect("", nil)
	assert.Equal(t, "guest3", next.Name())
}

func TestRegistry_NameInUse(t *testing.T) {
	reg := NewRegistry()
	alice := reg.Connect("", nil)
	alice.SetName("alice")
	bob := reg.Connect("", nil)

	assert.True(t, reg.NameInUse("alice", bob.ID()))
	assert.False(t, reg.NameInUse("alice", alice.ID()), "a client does not collide with itself")
	assert.False(t, reg.NameInUse("Alice", bob.ID()), "comparison is case-sensitive")
	assert.False(t, reg.NameInUse("carol", ulid.ULID{}))
}

func TestRegistry_Disconnect(t *testing.T) {
	reg := NewRegistry()
	c := reg.Connect("", nil)
	c.SetName("alice")

	assert.True(t, reg.Disconnect(c.ID()))
	assert.False(t, reg.Disconnect(c.ID()))
	assert.False(t, reg.NameInUse("alice", ulid.ULID{}))

	_, ok := reg.Get(c.ID())
	assert.False(t, ok)
}

func TestRegistry_ListAndNames(t *testing.T) {
	reg := NewRegistry()
	a := reg.Connect("", nil)
	b := reg.Connect("", nil)
	b.SetName("alice")

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID(), list[0].ID(), "list is ordered by connection")
	assert.Equal(t, []string{"alice", "guest1"}, reg.Names())
}

func TestRegistry_Broadcast(t *testing.T) {
	reg := NewRegistry()
	senderRec := &recorder{}
	okRec := &recorder{}
	badRec := &recorder{err: errors.New("broken pipe")}

	from := reg.Connect("", senderRec)
	reg.Connect("", okRec)
	reg.Connect("", badRec)

	failures := reg.Broadcast(from.ID(), "hello")

	assert.Equal(t, 1, failures)
	assert.Empty(t, senderRec.messages())
	assert.Equal(t, []any{"hello"}, okRec.messages())
}

func TestRegistry_LogsThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))

	from := reg.Connect("", &recorder{})
	bad := reg.Connect("", &recorder{err: errors.New("broken pipe")})

	assert.Equal(t, 1, reg.Broadcast(from.ID(), "hello"))
	assert.Contains(t, buf.String(), "broadcast delivery failed")
	assert.Contains(t, buf.String(), bad.ID().String())

	assert.False(t, reg.Disconnect(NewID()))
	assert.Contains(t, buf.String(), "disconnect called for unknown connection")
}

func TestRegistry_NilLoggerKeepsDefault(t *testing.T) {
	reg := NewRegistry(WithLogger(nil))
	assert.NotPanics(t, func() { reg.Disconnect(NewID()) })
}

func TestRegistry_ConcurrentConnectUniqueNames(t *testing.T) {
	reg := NewRegistry()

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Connect("", nil)
		}()
	}
	wg.Wait()

	names := reg.Names()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		assert.False(t, seen[name], "duplicate guest name %q", name)
		seen[name] = true
	}
	assert.Len(t, names, n)
}
