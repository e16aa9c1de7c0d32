package chat

import (
	"fmt"
	"strings"
)

// CharacterSource selects where the candidate system prompt comes from.
type CharacterSource string

const (
	SourceGenerate CharacterSource = "generate"
	SourceCustom   CharacterSource = "custom"
)

// Title is the label shown next to the radio button.
func (s CharacterSource) Title() string {
	switch s {
	case SourceGenerate:
		return "Generate New"
	case SourceCustom:
		return "Custom"
	default:
		return string(s)
	}
}

// ParseCharacterSource accepts either the value or its title, case-insensitively.
func ParseCharacterSource(raw string) (CharacterSource, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "generate", "generate new":
		return SourceGenerate, nil
	case "custom":
		return SourceCustom, nil
	default:
		return "", fmt.Errorf("unknown character source %q", raw)
	}
}

// SessionView captures what one browser session renders.
type SessionView struct {
	SessionID          string          `json:"sessionId"`
	Username           string          `json:"username"`
	Source             CharacterSource `json:"source"`
	GeneratedCharacter string          `json:"generatedCharacter,omitempty"`
	CustomCharacter    string          `json:"customCharacter"`
	Ready              bool            `json:"ready"`
	Conversation       []Entry         `json:"conversation"`
	Flash              string          `json:"flash,omitempty"`
}
