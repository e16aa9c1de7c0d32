package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/character-chat/internal/model/chat"
)

type fakeModel struct {
	mu     sync.Mutex
	reply  string
	err    error
	block  bool
	inputs [][]*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeModel) BindTools([]*schema.ToolInfo) error { return nil }

func (f *fakeModel) lastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[len(f.inputs)-1]
}

func TestReplySendsWholeConversation(t *testing.T) {
	fake := &fakeModel{reply: "  Hi.\n"}
	svc, err := NewServiceWithModel(t.Context(), fake, time.Second)
	require.NoError(t, err)

	conv := chat.Conversation{
		{Role: chat.RoleSystem, Text: "You are terse."},
		{Role: chat.RoleHuman, Text: "Hi {name}"},
	}
	reply, err := svc.Reply(t.Context(), conv)
	require.NoError(t, err)
	assert.Equal(t, "Hi.", reply)

	input := fake.lastInput()
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, "You are terse.", input[0].Content)
	assert.Equal(t, schema.User, input[1].Role)
	assert.Equal(t, "Hi {name}", input[1].Content)
}

func TestGenerateCharacterUsesFixedInstruction(t *testing.T) {
	fake := &fakeModel{reply: "You are a witty assistant.  "}
	svc, err := NewServiceWithModel(t.Context(), fake, time.Second)
	require.NoError(t, err)

	character, err := svc.GenerateCharacter(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "You are a witty assistant.", character)

	input := fake.lastInput()
	require.Len(t, input, 1)
	assert.Equal(t, schema.User, input[0].Role)
	assert.Equal(t, CharacterInstruction(), input[0].Content)
}

func TestReplyEmptyOutput(t *testing.T) {
	svc, err := NewServiceWithModel(t.Context(), &fakeModel{reply: "   "}, time.Second)
	require.NoError(t, err)

	_, err = svc.Reply(t.Context(), chat.NewConversation("persona"))
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestReplyPropagatesModelFailure(t *testing.T) {
	svc, err := NewServiceWithModel(t.Context(), &fakeModel{err: errors.New("boom")}, time.Second)
	require.NoError(t, err)

	_, err = svc.Reply(t.Context(), chat.NewConversation("persona"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestReplyIsBoundedByTimeout(t *testing.T) {
	svc, err := NewServiceWithModel(t.Context(), &fakeModel{block: true}, 20*time.Millisecond)
	require.NoError(t, err)

	started := time.Now()
	_, err = svc.Reply(t.Context(), chat.NewConversation("persona"))
	require.Error(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestUnavailableModelFailsOnUse(t *testing.T) {
	svc, err := NewServiceWithModel(t.Context(), unavailableModel{cause: errors.New("no credential")}, time.Second)
	require.NoError(t, err)

	_, err = svc.GenerateCharacter(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credential")
}
