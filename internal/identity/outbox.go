// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/chatd/internal/session"
)

// Outbox collects the notices an identity change produces. The Protocol
// delivers them after releasing its lock, so a connection that is slow to
// accept writes never stalls identity changes elsewhere.
type Outbox struct {
	pending []notice
}

type notice struct {
	to     *session.Client // nil for a broadcast
	except ulid.ULID
	msg    any
}

// Notify queues msg for c.
func (o *Outbox) Notify(c *session.Client, msg any) {
	o.pending = append(o.pending, notice{to: c, msg: msg})
}

// Broadcast queues msg for every connection except except.
func (o *Outbox) Broadcast(except ulid.ULID, msg any) {
	o.pending = append(o.pending, notice{except: except, msg: msg})
}

// Len returns the number of queued notices.
func (o *Outbox) Len() int {
	return len(o.pending)
}

// deliver sends the queued notices in order and empties the outbox.
func (o *Outbox) deliver(ctx context.Context, dir Directory, logger *slog.Logger) {
	pending := o.pending
	o.pending = nil
	for _, n := range pending {
		if n.to == nil {
			dir.Broadcast(n.except, n.msg)
			continue
		}
		if err := n.to.Send(n.msg); err != nil {
			logger.DebugContext(ctx, "identity notice not delivered",
				"conn_id", n.to.ID().String(),
				"error", err,
			)
		}
	}
}
