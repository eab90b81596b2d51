package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author side of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. Messages are stored once, keyed by
// ID, and threads reference them by ID; ThreadID is a weak back-reference to
// the single owning thread.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Role    Role   `json:"role"`
	// Timestamp is assigned once at creation and never changes, even when
	// the content is edited.
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"threadId"`
	// ParentMessageID is the message this one replies to within its thread.
	// Reserved for in-thread branching; not consulted by context resolution.
	ParentMessageID string `json:"parentMessageId,omitempty"`
	// ForkIDs lists threads that were forked from this message.
	ForkIDs     []string `json:"forkIds,omitempty"`
	IsEdited    bool     `json:"isEdited,omitempty"`
	EditHistory []string `json:"editHistory,omitempty"`
	// IsSeed marks a message synthesized from selected text to seed a new
	// thread. Seed messages are shown in the UI but are not sent to the
	// model until their thread has at least one ordinary message.
	IsSeed bool `json:"isSeed,omitempty"`
}

// UnmarshalJSON tolerates missing or malformed timestamps: they are left
// zero and coerced to load time by the persistence gateway.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		Timestamp json.RawMessage `json:"timestamp"`
		*alias
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Timestamp) > 0 {
		var ts time.Time
		if err := json.Unmarshal(aux.Timestamp, &ts); err == nil {
			m.Timestamp = ts
		} else {
			m.Timestamp = time.Time{}
		}
	}
	return nil
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	c.ForkIDs = append([]string(nil), m.ForkIDs...)
	c.EditHistory = append([]string(nil), m.EditHistory...)
	return &c
}
