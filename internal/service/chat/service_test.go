package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/character-chat/internal/model/chat"
	chatservice "github.com/zhouzirui/character-chat/internal/service/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
	"github.com/zhouzirui/character-chat/internal/storage/history"
)

type scriptedModel struct {
	replies    []string
	character  string
	err        error
	lastInput  chat.Conversation
	replyCalls int
}

func (m *scriptedModel) Reply(_ context.Context, conversation chat.Conversation) (string, error) {
	m.replyCalls++
	m.lastInput = conversation
	if m.err != nil {
		return "", m.err
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedModel) GenerateCharacter(context.Context) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.character, nil
}

type fixture struct {
	svc      *chatservice.Service
	store    *history.FileStore
	model    *scriptedModel
	sessions *session.Manager
}

func newFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	store, err := history.NewFileStore(dir)
	require.NoError(t, err)
	model := &scriptedModel{}
	return &fixture{
		svc:      chatservice.NewService(store, model),
		store:    store,
		model:    model,
		sessions: session.NewManager(time.Hour),
	}
}

func adoptCustom(t *testing.T, f *fixture, st *session.State, prompt string) {
	t.Helper()
	f.svc.SelectSource(st, chat.SourceCustom)
	f.svc.SetCustomCharacter(st, prompt)
	_, err := f.svc.AdoptCharacter(t.Context(), st)
	require.NoError(t, err)
}

func TestEndToEndAliceScenario(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, dir)
	ctx := t.Context()

	st := f.sessions.Create()
	f.svc.SetUsername(ctx, st, "alice")
	adoptCustom(t, f, st, "You are terse.")

	view := f.svc.View(st)
	require.True(t, view.Ready)
	require.Len(t, view.Conversation, 1)
	assert.Equal(t, chat.RoleSystem, view.Conversation[0].Role)

	f.model.replies = []string{"Hi."}
	conv, err := f.svc.SendMessage(ctx, st, "Hi")
	require.NoError(t, err)

	want := chat.Conversation{
		{Role: chat.RoleSystem, Text: "You are terse."},
		{Role: chat.RoleHuman, Text: "Hi"},
		{Role: chat.RoleAssistant, Text: "Hi."},
	}
	assert.Equal(t, want, conv)
	assert.Equal(t, want[:2], f.model.lastInput)

	// A new process with a new session sees the same record.
	restarted := newFixture(t, dir)
	fresh := restarted.sessions.Create()
	restarted.svc.SetUsername(ctx, fresh, "alice")
	assert.True(t, restarted.svc.View(fresh).Ready)

	loaded, err := restarted.store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want, loaded)
}

func TestAdoptReplacesConversationAndDeletesRecord(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := t.Context()
	st := f.sessions.Create()
	f.svc.SetUsername(ctx, st, "bob")
	adoptCustom(t, f, st, "first")

	f.model.replies = []string{"a", "b"}
	_, err := f.svc.SendMessage(ctx, st, "one")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, st, "two")
	require.NoError(t, err)

	f.svc.SetCustomCharacter(st, "second")
	conv, err := f.svc.AdoptCharacter(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, chat.NewConversation("second"), conv)

	loaded, err := f.store.Load(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestAdoptGeneratedRequiresGeneration(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := t.Context()
	st := f.sessions.Create()
	f.svc.SetUsername(ctx, st, "carol")

	_, err := f.svc.AdoptCharacter(ctx, st)
	assert.ErrorIs(t, err, chatservice.ErrNoGeneratedCharacter)
	assert.False(t, f.svc.View(st).Ready)

	f.model.character = "You are a witty assistant."
	character, err := f.svc.GenerateCharacter(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, "You are a witty assistant.", character)
	assert.False(t, f.svc.View(st).Ready, "generation alone must not start a conversation")

	conv, err := f.svc.AdoptCharacter(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, chat.NewConversation("You are a witty assistant."), conv)
}

func TestAdoptEmptyCustomCharacter(t *testing.T) {
	f := newFixture(t, t.TempDir())
	st := f.sessions.Create()
	f.svc.SelectSource(st, chat.SourceCustom)
	f.svc.SetCustomCharacter(st, "   ")

	_, err := f.svc.AdoptCharacter(t.Context(), st)
	assert.ErrorIs(t, err, chatservice.ErrEmptyCharacter)
}

func TestEmptyMessageChangesNothing(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := t.Context()
	st := f.sessions.Create()
	f.svc.SetUsername(ctx, st, "dave")
	adoptCustom(t, f, st, "persona")

	for _, text := range []string{"", "  \n"} {
		conv, err := f.svc.SendMessage(ctx, st, text)
		assert.ErrorIs(t, err, chatservice.ErrEmptyMessage)
		assert.Len(t, conv, 1)
	}
	assert.Zero(t, f.model.replyCalls)

	_, statErr := f.store.Load(ctx, "dave")
	require.NoError(t, statErr)
}

func TestSendRequiresUsernameAndConversation(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := t.Context()
	st := f.sessions.Create()

	_, err := f.svc.SendMessage(ctx, st, "hello")
	assert.ErrorIs(t, err, chatservice.ErrUsernameRequired)

	f.svc.SetUsername(ctx, st, "erin")
	_, err = f.svc.SendMessage(ctx, st, "hello")
	assert.ErrorIs(t, err, chatservice.ErrNoConversation)
	assert.Zero(t, f.model.replyCalls)
}

func TestModelFailureKeepsHumanMessageUnsaved(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := t.Context()
	st := f.sessions.Create()
	f.svc.SetUsername(ctx, st, "frank")
	adoptCustom(t, f, st, "persona")

	f.model.err = errors.New("rate limited")
	conv, err := f.svc.SendMessage(ctx, st, "hello")
	require.ErrorIs(t, err, chatservice.ErrModelFailed)
	require.Len(t, conv, 2)
	assert.Equal(t, chat.RoleHuman, conv[1].Role)

	loaded, err := f.store.Load(ctx, "frank")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSwitchingUserLoadsTheirHistory(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := t.Context()

	require.NoError(t, f.store.Save(ctx, "gina", chat.Conversation{
		{Role: chat.RoleSystem, Text: "gina persona"},
		{Role: chat.RoleHuman, Text: "hi"},
		{Role: chat.RoleAssistant, Text: "hello"},
	}))

	st := f.sessions.Create()
	f.svc.SetUsername(ctx, st, "hank")
	adoptCustom(t, f, st, "hank persona")

	f.svc.SetUsername(ctx, st, "gina")
	view := f.svc.View(st)
	require.True(t, view.Ready)
	require.Len(t, view.Conversation, 3)
	assert.Equal(t, "gina persona", view.Conversation[0].Text)
	assert.Equal(t, "gina", view.Conversation[1].Label)

	f.svc.SetUsername(ctx, st, "nobody-yet")
	assert.False(t, f.svc.View(st).Ready)
}

func TestAdoptBeforeUsernameKeepsCharacter(t *testing.T) {
	f := newFixture(t, t.TempDir())
	ctx := t.Context()
	st := f.sessions.Create()

	adoptCustom(t, f, st, "persona")
	assert.False(t, f.svc.View(st).Ready)

	f.svc.SetUsername(ctx, st, "ivy")
	view := f.svc.View(st)
	require.True(t, view.Ready)
	assert.Equal(t, "persona", view.Conversation[0].Text)
}

func TestNotifyIsShownOnce(t *testing.T) {
	f := newFixture(t, t.TempDir())
	st := f.sessions.Create()

	f.svc.Notify(st, "careful")
	assert.Equal(t, "careful", f.svc.View(st).Flash)
	assert.Empty(t, f.svc.View(st).Flash)
}
