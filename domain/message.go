// Package domain contains core concepts of the chat service.
// This file defines the wire schema exchanged with clients and the limits
// applied to it. No runtime, network, or UI logic should be added here.
package domain

import (
	"encoding/json"
	"fmt"
)

const (
	// AnonymousName replaces an empty or missing name on the first frame.
	AnonymousName = "anonymous"

	MaxNameLength    = 32
	MaxMessageLength = 256

	// HistoryWindow is how many persisted lines a joining session receives.
	HistoryWindow = 100
)

// Close codes sent on fatal session errors.
const (
	ClosePolicyViolation = 1009
	CloseInternalError   = 1011
)

// Inbound is a decoded client frame: {"name": ...} on the first frame of a
// session, {"message": ...} on every frame after that. Values are decoded
// loosely and coerced, clients are not trusted to send strings.
type Inbound struct {
	Name    any `json:"name"`
	Message any `json:"message"`
}

// ChatMessage is the broadcast and persisted form of one chat line.
type ChatMessage struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type Joined struct {
	Joined string `json:"joined"`
}

type Quit struct {
	Quit string `json:"quit"`
}

type Ready struct {
	Ready bool `json:"ready"`
}

type ErrorNotice struct {
	Error string `json:"error"`
}

// Encode marshals an outbound payload to its wire form. The outbound types
// above cannot fail to marshal, so the error is dropped.
func Encode(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// CoerceString renders a loosely decoded JSON value as the string clients
// meant: absent values become empty, strings pass through, everything else
// gets its printed form.
func CoerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
