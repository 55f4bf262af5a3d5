// Package observability aggregates runtime counters for the chat service.
package observability

import "sync/atomic"

// Monitor collects service-wide gauges and counters. Rooms and connections
// update it from their own goroutines, so everything is atomic.
type Monitor struct {
	activeSessions    int64
	sessionsJoined    uint64
	messagesBroadcast uint64
	rateLimited       uint64
	deliveryFailures  uint64
}

// Snapshot is one consistent-enough view for logging and the heartbeat.
type Snapshot struct {
	ActiveSessions    int64
	SessionsJoined    uint64
	MessagesBroadcast uint64
	RateLimited       uint64
	DeliveryFailures  uint64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) SessionJoined() {
	atomic.AddUint64(&m.sessionsJoined, 1)
	atomic.AddInt64(&m.activeSessions, 1)
}

func (m *Monitor) SessionLeft() {
	atomic.AddInt64(&m.activeSessions, -1)
}

func (m *Monitor) MessageBroadcast() {
	atomic.AddUint64(&m.messagesBroadcast, 1)
}

func (m *Monitor) RateLimited() {
	atomic.AddUint64(&m.rateLimited, 1)
}

func (m *Monitor) DeliveryFailure() {
	atomic.AddUint64(&m.deliveryFailures, 1)
}

func (m *Monitor) Snapshot() Snapshot {
	return Snapshot{
		ActiveSessions:    atomic.LoadInt64(&m.activeSessions),
		SessionsJoined:    atomic.LoadUint64(&m.sessionsJoined),
		MessagesBroadcast: atomic.LoadUint64(&m.messagesBroadcast),
		RateLimited:       atomic.LoadUint64(&m.rateLimited),
		DeliveryFailures:  atomic.LoadUint64(&m.deliveryFailures),
	}
}
