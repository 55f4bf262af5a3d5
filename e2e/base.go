package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"

	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/ws"
)

// Rate-limit settings tightened so a burst of a few frames is enough to
// trip the cooldown inside a test run.
const (
	e2eRateInterval = 300 * time.Millisecond
	e2eRateGrace    = 600 * time.Millisecond
	readTimeout     = 3 * time.Second
)

// BaseChatSuite boots the full service in-process: badger, the limiter and
// room registries, moderation and the websocket endpoint. Scenarios then
// talk to it over real websocket connections.
type BaseChatSuite struct {
	suite.Suite
	Config Config

	cancel  context.CancelFunc
	db      *badger.DB
	httpSrv *httptest.Server
}

func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	log := logs.GetLoggerFromString(s.Config.LogLevel)

	s.db, err = badger.Open(badger.DefaultOptions(s.T().TempDir()).
		WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	moderator, err := moderation.NewModerator([]string{"ugly"}, '*')
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	monitor := observability.NewMonitor()
	sup := workers.NewSupervisor(log, 100*time.Millisecond)
	history := repositories.NewHistoryRepository(s.db, log)
	limiters := runtime.NewLimiterRegistry(ctx, e2eRateInterval, e2eRateGrace,
		time.Minute, log)
	rooms := runtime.NewRoomRegistry(ctx, sup, history, limiters, moderator,
		monitor, 100, 16, log)

	server := ws.NewServer("127.0.0.1", 0, rooms, 16, log)
	s.httpSrv = httptest.NewServer(server.Handler())
}

func (s *BaseChatSuite) TearDownSuite() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Step prints a colorized header so scenario phases stand out in logs.
func (s *BaseChatSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Dial opens a websocket into the given room.
func (s *BaseChatSuite) Dial(room string) *chatClient {
	url := "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") +
		"/rooms/" + room + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to dial "+url)
	return &chatClient{suite: s, conn: conn}
}

// chatClient is one scripted participant.
type chatClient struct {
	suite *BaseChatSuite
	conn  *websocket.Conn
}

func (c *chatClient) Close() {
	_ = c.conn.Close()
}

func (c *chatClient) SendJSON(v any) {
	payload, err := json.Marshal(v)
	c.suite.Require().NoError(err)
	if c.suite.Config.DebugFrames {
		c.suite.T().Logf(">> %s", payload)
	}
	c.suite.Require().NoError(
		c.conn.WriteMessage(websocket.TextMessage, payload))
}

func (c *chatClient) Intro(name string) {
	c.SendJSON(map[string]any{"name": name})
}

func (c *chatClient) Say(text string) {
	c.SendJSON(map[string]any{"message": text})
}

// Next reads one frame as loosely typed JSON.
func (c *chatClient) Next() map[string]any {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, payload, err := c.conn.ReadMessage()
	c.suite.Require().NoError(err, "Expected another frame from the server")
	if c.suite.Config.DebugFrames {
		c.suite.T().Logf("<< %s", payload)
	}

	var frame map[string]any
	c.suite.Require().NoError(json.Unmarshal(payload, &frame))
	return frame
}

// WaitFor reads frames until one satisfies the predicate, failing the test
// if the deadline passes first.
func (c *chatClient) WaitFor(what string, match func(map[string]any) bool) map[string]any {
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		frame := c.Next()
		if match(frame) {
			return frame
		}
	}
	c.suite.Require().FailNow("Timed out waiting for frame", what)
	return nil
}

func hasKey(key string) func(map[string]any) bool {
	return func(frame map[string]any) bool {
		_, ok := frame[key]
		return ok
	}
}
