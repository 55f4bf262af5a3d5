// Package runtime wires room and limiter actors to the supervisor and hands
// out handles to the transport layer.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/limiter"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
)

// RoomRegistry maps room names to their single owning actor. Rooms are
// created lazily on first use and live until the service stops; an idle
// room is just a parked goroutine and an empty roster.
type RoomRegistry struct {
	ctx          context.Context
	sup          contract.ISupervisor
	history      contract.HistoryStore
	limiters     contract.LimiterProvider
	moderator    *moderation.Moderator
	monitor      *observability.Monitor
	historyLimit int
	bufferSize   int
	log          *slog.Logger

	mu    sync.Mutex
	rooms map[string]*workers.RoomWorker
}

func NewRoomRegistry(ctx context.Context, sup contract.ISupervisor,
	history contract.HistoryStore, limiters contract.LimiterProvider,
	moderator *moderation.Moderator, monitor *observability.Monitor,
	historyLimit, bufferSize int, log *slog.Logger) *RoomRegistry {
	return &RoomRegistry{
		ctx:          ctx,
		sup:          sup,
		history:      history,
		limiters:     limiters,
		moderator:    moderator,
		monitor:      monitor,
		historyLimit: historyLimit,
		bufferSize:   bufferSize,
		log:          log,
		rooms:        make(map[string]*workers.RoomWorker),
	}
}

// GetOrCreate returns the actor owning the named room, starting it under
// supervision on first use. The context given at construction bounds every
// room's lifetime.
func (r *RoomRegistry) GetOrCreate(name string) *workers.RoomWorker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[name]; ok {
		return room
	}

	gates := func(identity string, reportError func(error)) contract.AdmissionGate {
		return limiter.NewClient(func() contract.LimiterHandle {
			return r.limiters.GetHandle(identity)
		}, reportError, r.log)
	}

	room := workers.NewRoomWorker(name, r.history, gates, r.moderator,
		r.monitor, r.historyLimit, r.bufferSize, r.log)
	r.sup.Start(r.ctx, room)
	r.rooms[name] = room
	r.log.Info("Room created", "room", name)
	return room
}

// LimiterRegistry maps client identities to their limiter actor. Actors
// evict themselves after sitting idle, so the registry replaces a stopped
// actor the next time its identity shows up. A replacement starts with a
// clean ratchet; an identity briefly regaining headroom after an eviction
// is an accepted trade-off.
type LimiterRegistry struct {
	ctx      context.Context
	interval time.Duration
	grace    time.Duration
	idleTTL  time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	limiters map[string]*workers.RateLimiterWorker
}

func NewLimiterRegistry(ctx context.Context, interval, grace, idleTTL time.Duration,
	log *slog.Logger) *LimiterRegistry {
	return &LimiterRegistry{
		ctx:      ctx,
		interval: interval,
		grace:    grace,
		idleTTL:  idleTTL,
		log:      log,
		limiters: make(map[string]*workers.RateLimiterWorker),
	}
}

// GetHandle returns a fresh handle to the identity's limiter actor. Handles
// bind to one actor instance for life: once that actor stops, the handle
// fails permanently and callers come back here for a new one.
func (r *LimiterRegistry) GetHandle(identity string) contract.LimiterHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.limiters[identity]
	if !ok || w.Stopped() {
		w = workers.NewRateLimiterWorker(identity, r.interval, r.grace, r.idleTTL, r.log)
		go func() {
			// Limiter actors stop on their own idle TTL; the supervisor's
			// restart policy would defeat the eviction, so they run bare.
			_ = w.Run(r.ctx)
		}()
		r.limiters[identity] = w
	}
	return w.NewHandle()
}
