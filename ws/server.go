package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/domain"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
)

const (
	shutdownGrace = 5 * time.Second
	leaveTimeout  = 5 * time.Second
)

// Server accepts websocket upgrades on /rooms/{room}/websocket and bridges
// each connection to its room actor.
type Server struct {
	httpServer *http.Server
	rooms      *runtime.RoomRegistry
	upgrader   websocket.Upgrader
	bufferSize int
	log        *slog.Logger
}

func NewServer(host string, port int, rooms *runtime.RoomRegistry,
	connectionBuffer int, log *slog.Logger) *Server {
	s := &Server{
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		bufferSize: connectionBuffer,
		log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{room}/websocket", s.handleRoom)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: mux,
	}
	return s
}

// Run serves until the context is canceled, then drains with a grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Websocket server listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Handler exposes the routing mux, letting tests serve the websocket
// endpoint from their own listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleRoom(rw http.ResponseWriter, r *http.Request) {
	roomName := r.PathValue("room")
	if roomName == "" {
		http.Error(rw, "missing room name", http.StatusBadRequest)
		return
	}
	// ':' separates the segments of history keys; a room named "a:b" would
	// bleed into room "a"'s history scan.
	if strings.Contains(roomName, ":") {
		http.Error(rw, "invalid room name", http.StatusBadRequest)
		return
	}

	wsConn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "error", err)
		return
	}

	conn := NewConnection(wsConn, s.bufferSize, s.log)
	session := domain.NewSession(conn, clientIdentity(r))
	room := s.rooms.GetOrCreate(roomName)

	if err := room.Accept(r.Context(), session); err != nil {
		s.log.Error("Room unavailable", "room", roomName, "error", err)
		_ = conn.Close(domain.CloseInternalError, "room unavailable")
		return
	}

	s.readPump(r.Context(), room, session, conn)
}

// readPump forwards frames until the peer goes away, then reports the leave
// so the room can clean up its roster.
func (s *Server) readPump(ctx context.Context, room *workers.RoomWorker,
	session *domain.Session, conn *Connection) {
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		_ = room.Leave(leaveCtx, session)
	}()

	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Read ended", "session", session.ID, "error", err)
			}
			return
		}
		if err := room.Inbound(ctx, session, payload); err != nil {
			return
		}
	}
}

// clientIdentity picks the identity messages are rate-limited under: the
// first X-Forwarded-For hop when present, the peer address otherwise.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
