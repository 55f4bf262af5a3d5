package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
	errs "chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
)

type roomCommand interface{}

type joinCommand struct {
	session *domain.Session
}

type frameCommand struct {
	session *domain.Session
	payload []byte
}

type leaveCommand struct {
	session *domain.Session
}

// GateFactory builds the admission gate for one accepted session. The
// reportError callback is invoked when the gate's limiter becomes unusable;
// it should tear the session down.
type GateFactory func(identity string, reportError func(error)) contract.AdmissionGate

// RoomWorker is the actor owning one chat room: the live session roster,
// the timestamp ratchet and the persisted history. All commands are
// processed strictly one at a time by Run, which is what makes the state
// safe without any locking. Different rooms run fully concurrently.
type RoomWorker struct {
	name      string
	history   contract.HistoryStore
	gates     GateFactory
	moderator *moderation.Moderator
	monitor   *observability.Monitor
	log       *slog.Logger
	now       func() time.Time

	commands chan roomCommand

	// Owned by Run, untouched from anywhere else.
	sessions      []*domain.Session
	lastTimestamp int64
	historyLimit  int
}

func NewRoomWorker(name string, history contract.HistoryStore, gates GateFactory,
	moderator *moderation.Moderator, monitor *observability.Monitor,
	historyLimit, bufferSize int, log *slog.Logger) *RoomWorker {
	return &RoomWorker{
		name:         name,
		history:      history,
		gates:        gates,
		moderator:    moderator,
		monitor:      monitor,
		historyLimit: historyLimit,
		log:          log,
		now:          time.Now,
		commands:     make(chan roomCommand, bufferSize),
	}
}

// Accept hands a freshly upgraded connection to the room actor.
func (w *RoomWorker) Accept(ctx context.Context, session *domain.Session) error {
	return w.dispatch(ctx, joinCommand{session: session})
}

// Inbound forwards one client frame to the room actor.
func (w *RoomWorker) Inbound(ctx context.Context, session *domain.Session, payload []byte) error {
	return w.dispatch(ctx, frameCommand{session: session, payload: payload})
}

// Leave reports that the session's transport closed or errored.
func (w *RoomWorker) Leave(ctx context.Context, session *domain.Session) error {
	return w.dispatch(ctx, leaveCommand{session: session})
}

func (w *RoomWorker) dispatch(ctx context.Context, cmd roomCommand) error {
	select {
	case w.commands <- cmd:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errs.ErrRoomUnavailable, ctx.Err())
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-w.commands:
			switch c := cmd.(type) {
			case joinCommand:
				w.handleJoin(c.session)
			case frameCommand:
				w.handleFrame(c.session, c.payload)
			case leaveCommand:
				w.handleLeave(c.session)
			}
		}
	}
}

// handleJoin admits a session: wires its rate-limit gate, snapshots the
// current roster as queued "joined" notices and queues the tail of the
// persisted history. Nothing reaches the wire until the session names
// itself.
func (w *RoomWorker) handleJoin(s *domain.Session) {
	s.Gate = w.gates(s.Identity, func(err error) {
		// The limiter is broken: fail closed rather than let the session
		// run unmetered. Closing the transport makes the read loop report
		// a leave, which cleans up the roster.
		w.log.Warn("Closing session, limiter unusable",
			"room", w.name, "session", s.ID, "error", err)
		_ = s.Conn.Close(domain.CloseInternalError, err.Error())
	})

	w.sessions = append(w.sessions, s)

	for _, other := range w.sessions {
		if other == s || !other.Named() {
			continue
		}
		s.Pending = append(s.Pending, domain.Encode(domain.Joined{Joined: other.Name}))
	}

	entries, err := w.history.Latest(w.name, w.historyLimit)
	if err != nil {
		w.log.Error("History read failed", "room", w.name, "error", err)
	}
	for _, entry := range entries {
		s.Pending = append(s.Pending, string(entry))
	}

	w.monitor.SessionJoined()
}

// handleFrame processes one inbound frame. A fault while handling it is
// reported back to the offending session only; the actor and every other
// session keep going.
func (w *RoomWorker) handleFrame(s *domain.Session, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Frame handling panicked", "room", w.name, "error", r)
			w.send(s, domain.Encode(domain.ErrorNotice{Error: fmt.Sprintf("unexpected error: %v", r)}))
		}
	}()

	switch s.State {
	case domain.Terminated:
		// Frames can race with a termination noticed during a broadcast.
		_ = s.Conn.Close(domain.CloseInternalError, "connection broken")
	case domain.AwaitingName:
		w.handleName(s, payload)
	case domain.Active:
		w.handleMessage(s, payload)
	}
}

func (w *RoomWorker) handleName(s *domain.Session, payload []byte) {
	var in domain.Inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		w.send(s, domain.Encode(domain.ErrorNotice{Error: fmt.Sprintf("invalid frame: %v", err)}))
		return
	}

	name := domain.CoerceString(in.Name)
	if name == "" {
		name = domain.AnonymousName
	}
	if utf8.RuneCountInString(name) > domain.MaxNameLength {
		// Protocol violation, fatal to the session. The transport close
		// comes back as a leave command.
		w.send(s, domain.Encode(domain.ErrorNotice{Error: "Name is too long."}))
		_ = s.Conn.Close(domain.ClosePolicyViolation, "Name is too long.")
		return
	}

	s.SetName(name)

	// Flush the queued roster and history in order. They arrive together
	// with the readiness ack, never before the session was named.
	for _, queued := range s.Pending {
		if !w.send(s, queued) {
			w.drop(s)
			return
		}
	}
	s.Pending = nil

	w.broadcast(domain.Encode(domain.Joined{Joined: s.Name}))
	w.send(s, domain.Encode(domain.Ready{Ready: true}))
}

func (w *RoomWorker) handleMessage(s *domain.Session, payload []byte) {
	if !s.Gate.CheckLimit() {
		// Admission control: drop the payload, keep the session.
		w.monitor.RateLimited()
		w.send(s, domain.Encode(domain.ErrorNotice{
			Error: "Your IP is being rate-limited, please try again later.",
		}))
		return
	}

	var in domain.Inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		w.send(s, domain.Encode(domain.ErrorNotice{Error: fmt.Sprintf("invalid frame: %v", err)}))
		return
	}

	text := domain.CoerceString(in.Message)
	if utf8.RuneCountInString(text) > domain.MaxMessageLength {
		w.send(s, domain.Encode(domain.ErrorNotice{Error: "Message is too long."}))
		return
	}
	if w.moderator != nil {
		text = w.moderator.Censor(text)
	}

	message := domain.ChatMessage{
		Name:      s.Name,
		Message:   text,
		Timestamp: w.stamp(),
	}
	frame := domain.Encode(message)

	// Delivery first: durability never delays the broadcast.
	w.broadcast(frame)
	if err := w.history.Append(w.name, message.Timestamp, []byte(frame)); err != nil {
		w.log.Error("History append failed", "room", w.name, "error", err)
	}
	w.monitor.MessageBroadcast()
}

// handleLeave removes a session whose transport closed. Sessions already
// removed by a failed broadcast delivery have had their quit notice sent;
// they are never announced twice.
func (w *RoomWorker) handleLeave(s *domain.Session) {
	if !lo.Contains(w.sessions, s) {
		return
	}
	s.Terminate()
	w.sessions = lo.Without(w.sessions, s)
	w.monitor.SessionLeft()

	if s.Named() {
		w.broadcast(domain.Encode(domain.Quit{Quit: s.Name}))
	}
}

// stamp assigns the next message timestamp. Wall clock when it moves,
// last+1 when it does not: timestamps stay strictly increasing in
// processing order, which the history key ordering depends on.
func (w *RoomWorker) stamp() int64 {
	ts := w.now().UnixMilli()
	if ts <= w.lastTimestamp {
		ts = w.lastTimestamp + 1
	}
	w.lastTimestamp = ts
	return ts
}

// broadcast fans a frame out to the room. Named sessions get a delivery
// attempt, unnamed ones get it queued. Sessions whose delivery fails are
// removed after the pass and their quit notices drained off a worklist, so
// a failing recipient of a quit notice can never recurse unboundedly.
func (w *RoomWorker) broadcast(frame string) {
	worklist := w.deliver(frame)
	for len(worklist) > 0 {
		dead := worklist[0]
		worklist = worklist[1:]
		if !dead.Named() {
			continue
		}
		worklist = append(worklist, w.deliver(domain.Encode(domain.Quit{Quit: dead.Name}))...)
	}
}

// deliver runs one pass over the roster and returns the sessions it lost.
// The roster is never mutated mid-iteration; dead sessions are compacted
// out after the pass.
func (w *RoomWorker) deliver(frame string) []*domain.Session {
	var dead []*domain.Session
	alive := w.sessions[:0]
	for _, s := range w.sessions {
		if !s.Named() {
			s.Pending = append(s.Pending, frame)
			alive = append(alive, s)
			continue
		}
		if !w.send(s, frame) {
			dead = append(dead, s)
			continue
		}
		alive = append(alive, s)
	}
	w.sessions = alive
	for range dead {
		w.monitor.SessionLeft()
	}
	return dead
}

// send delivers one frame to a session and reports success. A failed send
// terminates the session; the caller decides how to clean up.
func (w *RoomWorker) send(s *domain.Session, frame string) bool {
	if s.State == domain.Terminated {
		return false
	}
	if err := s.Conn.Send(frame); err != nil {
		s.Terminate()
		w.monitor.DeliveryFailure()
		return false
	}
	return true
}

// drop removes a session that died before being announced. No quit notice
// is owed because no joined notice was ever broadcast for it.
func (w *RoomWorker) drop(s *domain.Session) {
	s.Terminate()
	w.sessions = lo.Without(w.sessions, s)
	w.monitor.SessionLeft()
}
