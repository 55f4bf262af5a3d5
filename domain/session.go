package domain

import (
	"chat-relay/contract"

	"github.com/google/uuid"
)

type SessionState int

const (
	// AwaitingName sessions have not identified themselves yet. They receive
	// nothing on the wire; broadcasts are queued in Pending instead.
	AwaitingName SessionState = iota
	Active
	Terminated
)

// Session is one connected participant inside a room. The owning room actor
// is the only writer of its fields, and the Connection is owned exclusively
// by the session.
type Session struct {
	ID       uuid.UUID
	Identity string // client identity used for rate limiting, typically the peer IP
	Conn     contract.Connection
	Gate     contract.AdmissionGate

	// Name is empty until the first frame names the session, then immutable.
	Name  string
	State SessionState

	// Pending queues serialized outbound frames while the session is
	// unnamed, so room contents never leak to anonymous lurkers.
	Pending []string
}

func NewSession(conn contract.Connection, identity string) *Session {
	return &Session{
		ID:       uuid.New(),
		Identity: identity,
		Conn:     conn,
		State:    AwaitingName,
	}
}

func (s *Session) Named() bool {
	return s.Name != ""
}

// SetName names the session exactly once and activates it. Later calls are
// ignored, a display name never changes for the session's lifetime.
func (s *Session) SetName(name string) {
	if s.Name != "" || s.State != AwaitingName {
		return
	}
	s.Name = name
	s.State = Active
}

// Terminate marks the session dead. A terminated session is excluded from
// every future broadcast and must never rejoin a roster.
func (s *Session) Terminate() {
	s.State = Terminated
}
