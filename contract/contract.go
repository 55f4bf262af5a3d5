//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
)

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Connection is the server side of one framed bidirectional channel.
// Send must never block on a slow peer: a send that cannot be queued fails,
// and a failed send is how a dead connection is detected.
type Connection interface {
	Send(text string) error
	Close(code int, reason string) error
}

// AdmissionGate is the session-local, instant rate-limit decision consulted
// by a room before processing each message.
type AdmissionGate interface {
	CheckLimit() bool
}

// LimiterHandle is a remote handle to one identity's limiter actor.
// Calls on a handle are delivered in order until the actor behind it goes
// away, after which every further call fails with ErrHandleDisconnected.
type LimiterHandle interface {
	Check(ctx context.Context, consume bool) (cooldown float64, err error)
}

// LimiterFactory returns a fresh handle for the same identity. It may be
// called again whenever the previous handle disconnects.
type LimiterFactory func() LimiterHandle

type LimiterProvider interface {
	GetHandle(identity string) LimiterHandle
}

// HistoryStore is the ordered string-keyed store backing room history.
// Keys are append-only; Latest walks the newest entries and returns them in
// chronological order.
type HistoryStore interface {
	Append(room string, timestampMillis int64, payload []byte) error
	Latest(room string, limit int) ([][]byte, error)
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
