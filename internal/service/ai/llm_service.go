package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/character-chat/internal/config"
	"github.com/zhouzirui/character-chat/internal/model/chat"
)

var (
	ErrModelUnavailable = errors.New("language model unavailable")
	ErrEmptyReply       = errors.New("language model returned an empty reply")
)

const defaultTimeout = 60 * time.Second

// Service is the boundary to the hosted language model.
type Service struct {
	chatModel      model.ChatModel
	timeout        time.Duration
	replyChain     compose.Runnable[map[string]any, *schema.Message]
	characterChain compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the provider model from cfg and compiles the chains.
// A model that cannot be constructed is replaced by one that fails every call,
// so a missing credential only surfaces when the model is first used.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		log.Warn().Str("component", "ai").Str("provider", cfg.Provider).Err(err).Msg("chat model unavailable, model calls will fail")
		chatModel = unavailableModel{cause: err}
	} else if !cfg.HasCredential() {
		log.Warn().Str("component", "ai").Str("provider", cfg.Provider).Msg("no model credential configured")
	}

	return NewServiceWithModel(ctx, chatModel, cfg.Timeout)
}

// NewServiceWithModel compiles the chains around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, timeout time.Duration) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	replyChain, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("conversation", false),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	characterChain, err := compileChain(ctx, chatModel, prompt.FromMessages(
		schema.FString,
		schema.UserMessage(characterInstruction),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to compile character chain: %w", err)
	}

	return &Service{
		chatModel:      chatModel,
		timeout:        timeout,
		replyChain:     replyChain,
		characterChain: characterChain,
	}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel, template prompt.ChatTemplate) (compose.Runnable[map[string]any, *schema.Message], error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

// Reply sends the whole conversation, leading system entry included, and returns the trimmed reply.
func (s *Service) Reply(ctx context.Context, conversation chat.Conversation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	response, err := s.replyChain.Invoke(ctx, map[string]any{
		"conversation": toSchemaMessages(conversation),
	})
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}

	reply := cleanReply(response.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	log.Debug().
		Str("component", "ai").
		Int("messages", len(conversation)).
		Int("reply_len", len(reply)).
		Dur("elapsed", time.Since(started)).
		Msg("generated reply")
	return reply, nil
}

// GenerateCharacter asks the model for a fresh character prompt.
func (s *Service) GenerateCharacter(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.characterChain.Invoke(ctx, map[string]any{})
	if err != nil {
		return "", fmt.Errorf("failed to run character chain: %w", err)
	}

	character := cleanReply(response.Content)
	if character == "" {
		return "", ErrEmptyReply
	}

	log.Debug().Str("component", "ai").Int("character_len", len(character)).Msg("generated character")
	return character, nil
}

func toSchemaMessages(conversation chat.Conversation) []*schema.Message {
	messages := make([]*schema.Message, 0, len(conversation))
	for _, msg := range conversation {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, schema.SystemMessage(msg.Text))
		case chat.RoleHuman:
			messages = append(messages, schema.UserMessage(msg.Text))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return messages
}

// unavailableModel fails every call with ErrModelUnavailable.
type unavailableModel struct {
	cause error
}

func (m unavailableModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, m.cause)
}

func (m unavailableModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, m.cause)
}

func (m unavailableModel) BindTools([]*schema.ToolInfo) error {
	return nil
}
