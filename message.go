package statecast

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// MessageKind classifies a [Message].
//
// The zero value is treated as [KindInfo] by [Store.AppendMessage].
type MessageKind string

const (
	// KindInfo is a neutral notice.
	KindInfo MessageKind = "info"

	// KindSuccess reports a completed action.
	KindSuccess MessageKind = "success"

	// KindWarning reports something the user may want to undo.
	KindWarning MessageKind = "warning"

	// KindError reports a failed action.
	KindError MessageKind = "error"
)

// String returns the string representation of the kind.
func (k MessageKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the four defined kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindInfo, KindSuccess, KindWarning, KindError:
		return true
	}
	return false
}

// ParseMessageKind converts s to a [MessageKind], ignoring case and
// surrounding space. An empty string parses as [KindInfo].
func ParseMessageKind(s string) (MessageKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindInfo, nil
	}
	k := MessageKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown message kind %q (expected info, success, warning, or error)", s)
	}
	return k, nil
}

// Message is one entry of the message log. Messages are never modified after
// they are created.
type Message struct {
	ID        int         `json:"id"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
	Kind      MessageKind `json:"kind"`
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return slices.Clone(msgs)
}

// DefaultSeedMessages returns the built-in message seed, most recent first,
// with timestamps relative to now.
func DefaultSeedMessages(now time.Time) []Message {
	return []Message{
		{ID: 1, Text: "Welcome to statecast!", CreatedAt: now, Kind: KindSuccess},
		{ID: 2, Text: "A shared store lets several views observe the same data", CreatedAt: now.Add(-time.Minute), Kind: KindInfo},
		{ID: 3, Text: "Observers receive the current value as soon as they subscribe", CreatedAt: now.Add(-2 * time.Minute), Kind: KindInfo},
	}
}
