// Package limiter implements the caller's side of the rate-limit protocol.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chat-relay/contract"
	"chat-relay/errors"
)

const callTimeout = 10 * time.Second

// Client lets a room make an instant, non-blocking admission decision for
// one session while the authoritative check runs in the background. The
// gate is deliberately optimistic: messages admitted during the in-flight
// window are only throttled by the room's own processing, and the cooldown
// flag flips once the actor reports a non-zero cooldown.
type Client struct {
	factory     contract.LimiterFactory
	reportError func(error)
	log         *slog.Logger

	mu         sync.Mutex
	handle     contract.LimiterHandle
	inCooldown atomic.Bool
}

// NewClient builds a client bound to one identity's limiter actor.
// The factory is called again whenever a handle disconnects; reportError is
// called when the limiter becomes unusable and the owner should tear the
// session down rather than let it run unmetered.
func NewClient(factory contract.LimiterFactory, reportError func(error), log *slog.Logger) *Client {
	return &Client{
		factory:     factory,
		reportError: reportError,
		log:         log,
		handle:      factory(),
	}
}

// CheckLimit decides whether one message may be admitted right now. It
// never blocks: each admitted message schedules one background consumption
// call, and only the outcome of those calls can flip the cooldown flag for
// later decisions.
func (c *Client) CheckLimit() bool {
	if c.inCooldown.Load() {
		return false
	}
	go c.reconcile()
	return true
}

// reconcile issues one consumption call to the limiter actor. A handle that
// has disconnected is replaced via the factory and the call retried exactly
// once; if that also fails the limiter cannot be trusted, and the session
// fails closed instead of silently allowing unmetered traffic. Errors stay
// inside the client, the room's message path never sees them.
func (c *Client) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()

	cooldown, err := handle.Check(ctx, true)
	if err != nil {
		c.log.Debug("Limiter handle failed, reacquiring", "error", err)
		handle = c.factory()
		c.mu.Lock()
		c.handle = handle
		c.mu.Unlock()

		cooldown, err = handle.Check(ctx, true)
	}
	if err != nil {
		c.reportError(fmt.Errorf("%w: %v", errors.ErrLimiterUnavailable, err))
		return
	}
	if cooldown > 0 {
		c.enterCooldown(time.Duration(cooldown * float64(time.Second)))
	}
}

// enterCooldown flips the flag for the reported duration. If a cooldown is
// already running its timer is kept, the ratchet behind it only grows.
func (c *Client) enterCooldown(d time.Duration) {
	if c.inCooldown.Swap(true) {
		return
	}
	time.AfterFunc(d, func() {
		c.inCooldown.Store(false)
	})
}
