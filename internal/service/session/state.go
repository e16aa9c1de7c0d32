package session

import (
	"sync"
	"time"

	"github.com/zhouzirui/character-chat/internal/model/chat"
	"github.com/zhouzirui/character-chat/internal/model/character"
)

// State is the mutable state of one browser session.
// Callers hold Lock for the whole interaction so turns on one session never interleave.
type State struct {
	ID string

	mu                 sync.Mutex
	Username           string
	Source             chat.CharacterSource
	CustomCharacter    string
	GeneratedCharacter string
	Conversation       chat.Conversation
	flash              string

	seenMu   sync.Mutex
	lastSeen time.Time
}

func newState(id string, now time.Time) *State {
	return &State{
		ID:              id,
		Source:          chat.SourceGenerate,
		CustomCharacter: character.DefaultCustomPrompt,
		lastSeen:        now,
	}
}

// Lock serializes interactions on the session.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the interaction lock.
func (s *State) Unlock() { s.mu.Unlock() }

// SetFlash stores a one-shot notice for the next render. Requires Lock.
func (s *State) SetFlash(message string) { s.flash = message }

// TakeFlash returns and clears the pending notice. Requires Lock.
func (s *State) TakeFlash() string {
	msg := s.flash
	s.flash = ""
	return msg
}

func (s *State) touch(now time.Time) {
	s.seenMu.Lock()
	s.lastSeen = now
	s.seenMu.Unlock()
}

func (s *State) idleSince(now time.Time) time.Duration {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return now.Sub(s.lastSeen)
}
