package ui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/character-chat/internal/middleware"
	"github.com/zhouzirui/character-chat/internal/model/character"
	"github.com/zhouzirui/character-chat/internal/model/chat"
	chatservice "github.com/zhouzirui/character-chat/internal/service/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
	"github.com/zhouzirui/character-chat/internal/storage/history"
)

type fakeModel struct {
	reply string
	err   error
}

func (m *fakeModel) Reply(context.Context, chat.Conversation) (string, error) {
	return m.reply, m.err
}

func (m *fakeModel) GenerateCharacter(context.Context) (string, error) {
	return "You are a generated pirate.", m.err
}

type browser struct {
	t      *testing.T
	router http.Handler
	cookie *http.Cookie
	store  *history.FileStore
}

func newBrowser(t *testing.T, model *fakeModel) *browser {
	t.Helper()
	store, err := history.NewFileStore(t.TempDir())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.Session(session.NewManager(time.Hour), false))
	New(chatservice.NewService(store, model), character.NewMemoryStore(character.Seed())).RegisterRoutes(r)
	return &browser{t: t, router: r, store: store}
}

func (b *browser) serve(req *http.Request) *httptest.ResponseRecorder {
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.SessionCookie {
			b.cookie = cookie
		}
	}
	return rec
}

func (b *browser) page() string {
	b.t.Helper()
	rec := b.serve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(b.t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func (b *browser) post(path string, form url.Values) {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := b.serve(req)
	require.Equal(b.t, http.StatusSeeOther, rec.Code)
	assert.Equal(b.t, "/", rec.Header().Get("Location"))
}

func TestWelcomeTextBeforeReady(t *testing.T) {
	b := newBrowser(t, &fakeModel{})

	body := b.page()
	assert.Contains(t, body, "Chat with Select AI Character")
	assert.Contains(t, body, "Kindly enter a username")
	assert.Contains(t, body, "No AI character generated yet. Click the button above to generate one.")
	assert.NotContains(t, body, "Your message")
}

func TestFullConversationThroughForms(t *testing.T) {
	b := newBrowser(t, &fakeModel{reply: "Hi."})

	b.post("/user", url.Values{"username": {"alice"}})
	b.post("/character", url.Values{"source": {"custom"}, "action": {"source"}})
	assert.Contains(t, b.page(), "You are a knowledgeable expert.")

	b.post("/character", url.Values{"custom_character": {"You are terse."}, "action": {"adopt"}})
	body := b.page()
	assert.Contains(t, body, "<em>Chatbot Character:</em> You are terse.")
	assert.Contains(t, body, "Your message")

	b.post("/messages", url.Values{"message": {"Hi"}})
	body = b.page()
	assert.Contains(t, body, "<strong>alice:</strong> Hi")
	assert.Contains(t, body, "<strong>Chatbot:</strong> Hi.")

	conv, err := b.store.Load(t.Context(), "alice")
	require.NoError(t, err)
	assert.Len(t, conv, 3)
}

func TestAdoptWithoutGenerationShowsWarningOnce(t *testing.T) {
	b := newBrowser(t, &fakeModel{})

	b.post("/character", url.Values{"action": {"adopt"}})
	body := b.page()
	assert.Contains(t, body, `class="flash"`)
	assert.Contains(t, body, "no AI character generated yet")

	assert.NotContains(t, b.page(), `class="flash"`)
}

func TestGenerateShowsCandidate(t *testing.T) {
	b := newBrowser(t, &fakeModel{})

	b.post("/character", url.Values{"source": {"generate"}, "action": {"generate"}})
	body := b.page()
	assert.Contains(t, body, "Generated AI Character:")
	assert.Contains(t, body, "You are a generated pirate.")
}

func TestPresetFillsCustomText(t *testing.T) {
	b := newBrowser(t, &fakeModel{})

	b.post("/character", url.Values{"action": {"preset"}, "preset": {"socratic"}})
	assert.Contains(t, b.page(), "Socratic tutor. Guide the user")
}

func TestModelFailureIsFlashed(t *testing.T) {
	b := newBrowser(t, &fakeModel{err: errors.New("quota exceeded")})

	b.post("/user", url.Values{"username": {"bob"}})
	b.post("/character", url.Values{"source": {"custom"}, "custom_character": {"persona"}, "action": {"adopt"}})
	b.post("/messages", url.Values{"message": {"hello"}})

	body := b.page()
	assert.Contains(t, body, "language model call failed")
	assert.Contains(t, body, "<strong>bob:</strong> hello")
}

func TestEmptyMessageIsIgnored(t *testing.T) {
	b := newBrowser(t, &fakeModel{})

	b.post("/user", url.Values{"username": {"carol"}})
	b.post("/character", url.Values{"source": {"custom"}, "action": {"adopt"}})
	b.post("/messages", url.Values{"message": {""}})

	assert.NotContains(t, b.page(), `class="flash"`)
}

func TestHTMLIsEscaped(t *testing.T) {
	b := newBrowser(t, &fakeModel{})

	b.post("/user", url.Values{"username": {"<script>x</script>"}})
	body := b.page()
	assert.NotContains(t, body, "<script>x</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}
