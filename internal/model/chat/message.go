package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role tags who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleHuman, RoleAssistant:
		return true
	}
	return false
}

var ErrInvalidMessage = errors.New("message must be a [role, text] pair")

// Message is one role-tagged entry of a conversation.
// On the wire it is a two-element array: ["human", "Hi"].
type Message struct {
	Role Role
	Text string
}

// MarshalJSON encodes the message as a [role, text] pair.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{string(m.Role), m.Text})
}

// UnmarshalJSON decodes a [role, text] pair.
func (m *Message) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: got %d elements", ErrInvalidMessage, len(pair))
	}

	role := Role(pair[0])
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, pair[0])
	}

	m.Role = role
	m.Text = pair[1]
	return nil
}

// Conversation is the ordered transcript of one session.
// A nil Conversation means no character has been adopted and no history was loaded.
type Conversation []Message

// NewConversation starts a conversation from a system prompt.
func NewConversation(systemPrompt string) Conversation {
	return Conversation{{Role: RoleSystem, Text: systemPrompt}}
}

// Clone returns an independent copy. Clone of nil is nil.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Character returns the leading system prompt, if any.
func (c Conversation) Character() (string, bool) {
	if len(c) == 0 || c[0].Role != RoleSystem {
		return "", false
	}
	return c[0].Text, true
}

// Entry is a display-ready projection of a message.
type Entry struct {
	Role  Role   `json:"role"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Label returns the prefix shown in front of a message.
func Label(role Role, username string) string {
	switch role {
	case RoleHuman:
		return username
	case RoleAssistant:
		return "Chatbot"
	case RoleSystem:
		return "Chatbot Character"
	default:
		return string(role)
	}
}

// Entries projects the conversation for rendering. It never mutates c.
func (c Conversation) Entries(username string) []Entry {
	entries := make([]Entry, 0, len(c))
	for _, msg := range c {
		entries = append(entries, Entry{
			Role:  msg.Role,
			Label: Label(msg.Role, username),
			Text:  msg.Text,
		})
	}
	return entries
}
