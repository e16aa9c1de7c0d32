package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/character-chat/internal/model/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
)

var (
	ErrUsernameRequired     = errors.New("username is required")
	ErrNoConversation       = errors.New("no character set: adopt a character or continue an existing conversation")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrNoGeneratedCharacter = errors.New("no AI character generated yet: generate one first")
	ErrEmptyCharacter       = errors.New("character prompt is empty")
	ErrModelFailed          = errors.New("language model call failed")
)

// HistoryStore persists one conversation per username.
type HistoryStore interface {
	Load(ctx context.Context, user string) (chat.Conversation, error)
	Save(ctx context.Context, user string, conversation chat.Conversation) error
	Remove(ctx context.Context, user string) error
}

// Model is the hosted language model.
type Model interface {
	Reply(ctx context.Context, conversation chat.Conversation) (string, error)
	GenerateCharacter(ctx context.Context) (string, error)
}

// Service runs the character selector and the chat loop against one session at a time.
// Every method holds the session lock for its whole duration.
type Service struct {
	history HistoryStore
	model   Model
}

// NewService wires the chat loop to its history store and model.
func NewService(history HistoryStore, model Model) *Service {
	return &Service{history: history, model: model}
}

// SetUsername identifies the user of the session. Switching from one user to
// another drops the session conversation; the new user's record is loaded when
// the session has no conversation.
func (s *Service) SetUsername(ctx context.Context, st *session.State, username string) {
	st.Lock()
	defer st.Unlock()

	username = strings.TrimSpace(username)
	if username != st.Username {
		if st.Username != "" || username == "" {
			st.Conversation = nil
		}
		st.Username = username
	}

	if st.Username != "" && st.Conversation == nil {
		s.loadHistory(ctx, st)
	}
}

func (s *Service) loadHistory(ctx context.Context, st *session.State) {
	conversation, err := s.history.Load(ctx, st.Username)
	if err != nil {
		log.Warn().Str("component", "chat").Str("session", st.ID).Err(err).Msg("history unavailable, starting without it")
		return
	}
	if len(conversation) > 0 {
		st.Conversation = conversation
	}
}

// SelectSource switches between the Generate New and Custom modes.
func (s *Service) SelectSource(st *session.State, source chat.CharacterSource) {
	st.Lock()
	defer st.Unlock()
	st.Source = source
}

// SetCustomCharacter records the text typed into the Custom text area.
func (s *Service) SetCustomCharacter(st *session.State, text string) {
	st.Lock()
	defer st.Unlock()
	st.CustomCharacter = text
}

// GenerateCharacter asks the model for a new character and caches it on the
// session. The conversation is left untouched.
func (s *Service) GenerateCharacter(ctx context.Context, st *session.State) (string, error) {
	st.Lock()
	defer st.Unlock()

	character, err := s.model.GenerateCharacter(ctx)
	if err != nil {
		log.Error().Str("component", "chat").Str("session", st.ID).Err(err).Msg("character generation failed")
		return "", fmt.Errorf("%w: %w", ErrModelFailed, err)
	}

	st.Source = chat.SourceGenerate
	st.GeneratedCharacter = character
	return character, nil
}

// AdoptCharacter resets the conversation to the active candidate prompt and
// deletes the user's history record. With nothing generated in Generate New
// mode it returns ErrNoGeneratedCharacter and changes nothing.
func (s *Service) AdoptCharacter(ctx context.Context, st *session.State) (chat.Conversation, error) {
	st.Lock()
	defer st.Unlock()

	var prompt string
	switch st.Source {
	case chat.SourceGenerate:
		if st.GeneratedCharacter == "" {
			return nil, ErrNoGeneratedCharacter
		}
		prompt = st.GeneratedCharacter
	case chat.SourceCustom:
		if strings.TrimSpace(st.CustomCharacter) == "" {
			return nil, ErrEmptyCharacter
		}
		prompt = st.CustomCharacter
	default:
		return nil, fmt.Errorf("unknown character source %q", st.Source)
	}

	if err := s.history.Remove(ctx, st.Username); err != nil {
		return nil, fmt.Errorf("reset history: %w", err)
	}

	st.Conversation = chat.NewConversation(prompt)
	log.Info().Str("component", "chat").Str("session", st.ID).Str("source", string(st.Source)).Msg("character adopted")
	return st.Conversation.Clone(), nil
}

// SendMessage runs one turn: append the human message, ask the model with the
// full conversation, append the reply and persist. When the model fails the
// human message stays in the session and nothing is persisted.
func (s *Service) SendMessage(ctx context.Context, st *session.State, text string) (chat.Conversation, error) {
	st.Lock()
	defer st.Unlock()

	if strings.TrimSpace(text) == "" {
		return st.Conversation.Clone(), ErrEmptyMessage
	}
	if st.Username == "" {
		return st.Conversation.Clone(), ErrUsernameRequired
	}
	if st.Conversation == nil {
		return nil, ErrNoConversation
	}

	st.Conversation = append(st.Conversation, chat.Message{Role: chat.RoleHuman, Text: text})

	reply, err := s.model.Reply(ctx, st.Conversation.Clone())
	if err != nil {
		log.Error().Str("component", "chat").Str("session", st.ID).Int("messages", len(st.Conversation)).Err(err).Msg("turn aborted")
		return st.Conversation.Clone(), fmt.Errorf("%w: %w", ErrModelFailed, err)
	}

	st.Conversation = append(st.Conversation, chat.Message{Role: chat.RoleAssistant, Text: reply})

	if err := s.history.Save(ctx, st.Username, st.Conversation); err != nil {
		log.Error().Str("component", "chat").Str("session", st.ID).Err(err).Msg("failed to persist conversation")
		return st.Conversation.Clone(), fmt.Errorf("save history: %w", err)
	}

	return st.Conversation.Clone(), nil
}

// Notify queues a one-shot notice shown on the next render.
func (s *Service) Notify(st *session.State, message string) {
	st.Lock()
	defer st.Unlock()
	st.SetFlash(message)
}

// View projects the session for display and consumes any pending notice.
func (s *Service) View(st *session.State) chat.SessionView {
	st.Lock()
	defer st.Unlock()

	return chat.SessionView{
		SessionID:          st.ID,
		Username:           st.Username,
		Source:             st.Source,
		GeneratedCharacter: st.GeneratedCharacter,
		CustomCharacter:    st.CustomCharacter,
		Ready:              st.Username != "" && st.Conversation != nil,
		Conversation:       st.Conversation.Entries(st.Username),
		Flash:              st.TakeFlash(),
	}
}
