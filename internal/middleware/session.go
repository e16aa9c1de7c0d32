package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/character-chat/internal/service/session"
)

// SessionCookie carries the browser session id.
const SessionCookie = "charchat_session"

type sessionKey struct{}

// Session resolves the browser session from its cookie, creating a fresh one
// when the cookie is missing, unknown or expired.
func Session(sessions *session.Manager, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(SessionCookie); err == nil {
				id = cookie.Value
			}

			st, created := sessions.GetOrCreate(id)
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    st.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
				hlog.FromRequest(r).Debug().Str("session", st.ID).Msg("session started")
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), st)))
		})
	}
}

// WithSession attaches a session to ctx.
func WithSession(ctx context.Context, st *session.State) context.Context {
	return context.WithValue(ctx, sessionKey{}, st)
}

// SessionFrom returns the session attached by Session.
func SessionFrom(ctx context.Context) (*session.State, bool) {
	st, ok := ctx.Value(sessionKey{}).(*session.State)
	return st, ok && st != nil
}
