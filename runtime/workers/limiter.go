package workers

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"chat-relay/errors"
)

type limiterRequest struct {
	consume bool
	reply   chan float64
}

// RateLimiterWorker owns the cooldown ratchet for a single client identity.
// Every call is serialized through the requests channel, so the ratchet
// needs no locking. One actor throttles its identity across every room and
// connection that identity has open.
//
// The ratchet only moves forward: each consumption pushes the next allowed
// time out by interval, and the grace period absorbs clock skew and the
// round trip so callers are not punished for latency. State is deliberately
// not persisted: an evicted actor restarts clean.
type RateLimiterWorker struct {
	identity string
	interval time.Duration
	grace    time.Duration
	idleTTL  time.Duration
	now      func() time.Time
	log      *slog.Logger

	requests chan limiterRequest
	stopped  chan struct{}
	stopOnce sync.Once

	nextAllowedTime float64 // unix seconds, never decreases
}

func NewRateLimiterWorker(identity string, interval, grace, idleTTL time.Duration, log *slog.Logger) *RateLimiterWorker {
	return &RateLimiterWorker{
		identity: identity,
		interval: interval,
		grace:    grace,
		idleTTL:  idleTTL,
		now:      time.Now,
		log:      log,
		requests: make(chan limiterRequest),
		stopped:  make(chan struct{}),
	}
}

// Run processes requests one at a time until the context ends or the actor
// has been idle for its TTL. Once Run returns, every handle pointing at this
// actor fails permanently and callers must acquire a fresh one.
func (w *RateLimiterWorker) Run(ctx context.Context) error {
	defer w.stopOnce.Do(func() { close(w.stopped) })

	idle := time.NewTimer(w.idleTTL)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			w.log.Debug("Evicting idle limiter", "identity", w.identity)
			return nil
		case req := <-w.requests:
			req.reply <- w.handle(req.consume)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(w.idleTTL)
		}
	}
}

// handle applies one query or consumption to the ratchet and returns the
// cooldown in seconds the caller still has to sit out.
func (w *RateLimiterWorker) handle(consume bool) float64 {
	now := float64(w.now().UnixNano()) / float64(time.Second)

	w.nextAllowedTime = math.Max(now, w.nextAllowedTime)
	if consume {
		w.nextAllowedTime += w.interval.Seconds()
	}
	return math.Max(0, w.nextAllowedTime-now-w.grace.Seconds())
}

// Stopped reports whether the actor has exited. Registries use this to
// replace evicted actors on the next handle request.
func (w *RateLimiterWorker) Stopped() bool {
	select {
	case <-w.stopped:
		return true
	default:
		return false
	}
}

// LimiterHandle is one caller's handle to a limiter actor. Requests on a
// handle are delivered in order; once the actor behind it stops, every call
// fails with ErrHandleDisconnected forever.
type LimiterHandle struct {
	requests chan<- limiterRequest
	stopped  <-chan struct{}
}

// NewHandle returns a fresh handle bound to this actor instance.
func (w *RateLimiterWorker) NewHandle() *LimiterHandle {
	return &LimiterHandle{requests: w.requests, stopped: w.stopped}
}

// Check performs one query (consume=false) or consumption (consume=true)
// call and returns the remaining cooldown in seconds.
func (h *LimiterHandle) Check(ctx context.Context, consume bool) (float64, error) {
	reply := make(chan float64, 1)

	select {
	case <-h.stopped:
		return 0, errors.ErrHandleDisconnected
	case <-ctx.Done():
		return 0, ctx.Err()
	case h.requests <- limiterRequest{consume: consume, reply: reply}:
	}

	select {
	case <-h.stopped:
		return 0, errors.ErrHandleDisconnected
	case <-ctx.Done():
		return 0, ctx.Err()
	case cooldown := <-reply:
		return cooldown, nil
	}
}
