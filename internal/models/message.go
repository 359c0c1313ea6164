package models

import "time"

// Message represents an individual entry of the conversation log. Role and Content are the only fields
// that are transmitted to the answer backend as history; the rest is bookkeeping for the session
// controller and the page.
type Message struct {
	// ID is the correlation token of the message. A placeholder and the exchange that resolves it share
	// the same ID.
	ID      string
	Role    Role
	Content string

	// Pending is true while the message is an unresolved assistant placeholder.
	Pending bool
	// Notice is true for system notices, e.g. the confirmation appended after a successful upload.
	Notice bool

	Timestamp time.Time
}

// HistoryMessage is the wire representation of a Message in the conversation history.
type HistoryMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents an answer, a placeholder for one, or a system notice.
	RoleAssistant Role = "assistant"
)

// PlaceholderContent is the marker content of an unresolved assistant placeholder.
const PlaceholderContent = "..."

// History converts messages into their wire representation, preserving order.
func History(messages []Message) []HistoryMessage {
	hs := make([]HistoryMessage, len(messages))
	for i, msg := range messages {
		hs[i] = HistoryMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return hs
}
