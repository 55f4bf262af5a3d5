package e2e

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type chatScenarioSuite struct {
	BaseChatSuite
}

func TestChatScenarioSuite(t *testing.T) {
	suite.Run(t, &chatScenarioSuite{})
}

func (s *chatScenarioSuite) TestChatRoomFlow() {
	const room = "e2e-lobby"

	// --- STEP 1: FIRST PARTICIPANT ---
	s.Step("Alice joins and introduces herself")
	alice := s.Dial(room)
	defer alice.Close()

	alice.Intro("alice")
	// Her own join announcement comes first, then the readiness ack.
	joined := alice.WaitFor("own join notice", hasKey("joined"))
	s.Require().Equal("alice", joined["joined"])
	ready := alice.Next()
	s.Require().Equal(true, ready["ready"])

	// --- STEP 2: SECOND PARTICIPANT SEES THE ROSTER ---
	s.Step("Bob joins and learns who is here")
	bob := s.Dial(room)

	bob.Intro("bob")
	rosterNotice := bob.WaitFor("roster snapshot", hasKey("joined"))
	s.Require().Equal("alice", rosterNotice["joined"])
	ownNotice := bob.WaitFor("own join notice", hasKey("joined"))
	s.Require().Equal("bob", ownNotice["joined"])
	bob.WaitFor("readiness ack", hasKey("ready"))

	aliceSees := alice.WaitFor("bob's join notice", hasKey("joined"))
	s.Require().Equal("bob", aliceSees["joined"])

	// --- STEP 3: BROADCAST WITH MODERATION ---
	s.Step("A message reaches everyone, censored")
	alice.Say("that fix is ugly but it works")

	for _, client := range []*chatClient{alice, bob} {
		frame := client.WaitFor("chat line", hasKey("message"))
		s.Require().Equal("alice", frame["name"])
		s.Require().Equal("that fix is **** but it works", frame["message"])
		s.Require().IsType(float64(0), frame["timestamp"])
	}

	// --- STEP 4: HISTORY REPLAY ---
	s.Step("A latecomer receives the conversation so far")
	carol := s.Dial(room)
	defer carol.Close()

	carol.Intro("carol")
	replayed := carol.WaitFor("replayed chat line", hasKey("message"))
	s.Require().Equal("that fix is **** but it works", replayed["message"])
	carol.WaitFor("readiness ack", hasKey("ready"))

	// --- STEP 5: QUIT NOTICE ---
	s.Step("Closing a socket announces the quit")
	bob.Close()
	quit := alice.WaitFor("bob's quit notice", hasKey("quit"))
	s.Require().Equal("bob", quit["quit"])
}

func (s *chatScenarioSuite) TestProtocolViolations() {
	const room = "e2e-rules"

	s.Step("An overlong name is fatal to the session")
	rogue := s.Dial(room)
	rogue.Intro(strings.Repeat("x", 40))

	notice := rogue.WaitFor("error notice", hasKey("error"))
	s.Require().Equal("Name is too long.", notice["error"])

	s.Require().NoError(rogue.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, _, err := rogue.conn.ReadMessage()
	var closeErr *websocket.CloseError
	if s.ErrorAs(err, &closeErr) {
		s.Require().Equal(websocket.CloseMessageTooBig, closeErr.Code)
	}
	rogue.Close()

	s.Step("An overlong message is rejected, the session survives")
	chatty := s.Dial(room)
	defer chatty.Close()
	chatty.Intro("chatty")
	chatty.WaitFor("readiness ack", hasKey("ready"))

	chatty.Say(strings.Repeat("y", 300))
	rejection := chatty.WaitFor("error notice", hasKey("error"))
	s.Require().Equal("Message is too long.", rejection["error"])

	chatty.Say("short and sweet")
	echo := chatty.WaitFor("chat line", hasKey("message"))
	s.Require().Equal("short and sweet", echo["message"])
}

// Runs last in the suite: the limiter is keyed by client IP, and the burst
// here would otherwise bleed into the quieter scenarios.
func (s *chatScenarioSuite) TestRateLimitingThrottlesBursts() {
	const room = "e2e-limits"

	s.Step("A burst of messages trips the cooldown")
	spammer := s.Dial(room)
	defer spammer.Close()
	spammer.Intro("spammer")
	spammer.WaitFor("readiness ack", hasKey("ready"))

	throttled := false
	for i := 0; i < 20 && !throttled; i++ {
		spammer.Say("spam spam spam")
		frame := spammer.Next()
		if msg, ok := frame["error"].(string); ok &&
			strings.Contains(msg, "rate-limited") {
			throttled = true
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.Require().True(throttled, "Expected the burst to hit the rate limiter")
}
