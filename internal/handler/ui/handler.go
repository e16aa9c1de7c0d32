// Package ui renders the chat page. Every form posts, applies one operation
// and redirects back to the page, which re-renders from session state.
package ui

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/character-chat/internal/middleware"
	"github.com/zhouzirui/character-chat/internal/model/character"
	"github.com/zhouzirui/character-chat/internal/model/chat"
	chatService "github.com/zhouzirui/character-chat/internal/service/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	View    chat.SessionView
	Sources []chat.CharacterSource
	Presets []character.Preset
}

// Handler serves the HTML page and its form posts.
type Handler struct {
	chatSvc *chatService.Service
	presets character.Store
}

// New creates the page handler.
func New(chatSvc *chatService.Service, presets character.Store) *Handler {
	return &Handler{chatSvc: chatSvc, presets: presets}
}

// RegisterRoutes mounts the page and its form targets.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.withSession(h.handlePage))
	r.Post("/user", h.withSession(h.handleUser))
	r.Post("/character", h.withSession(h.handleCharacter))
	r.Post("/messages", h.withSession(h.handleMessage))
}

func (h *Handler) withSession(next func(http.ResponseWriter, *http.Request, *session.State)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := middleware.SessionFrom(r.Context())
		if !ok {
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		next(w, r, st)
	}
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request, st *session.State) {
	data := pageData{
		View:    h.chatSvc.View(st),
		Sources: []chat.CharacterSource{chat.SourceGenerate, chat.SourceCustom},
		Presets: h.presets.List(),
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		hlog.FromRequest(r).Error().Str("component", "ui").Err(err).Msg("render failed")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := r.ParseForm(); err != nil {
		h.chatSvc.Notify(st, "invalid form submission")
		rerun(w, r)
		return
	}

	h.chatSvc.SetUsername(r.Context(), st, r.PostForm.Get("username"))
	rerun(w, r)
}

func (h *Handler) handleCharacter(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := r.ParseForm(); err != nil {
		h.chatSvc.Notify(st, "invalid form submission")
		rerun(w, r)
		return
	}

	if raw := r.PostForm.Get("source"); raw != "" {
		source, err := chat.ParseCharacterSource(raw)
		if err != nil {
			h.chatSvc.Notify(st, err.Error())
			rerun(w, r)
			return
		}
		h.chatSvc.SelectSource(st, source)
	}
	if _, ok := r.PostForm["custom_character"]; ok {
		h.chatSvc.SetCustomCharacter(st, r.PostForm.Get("custom_character"))
	}

	switch action := r.PostForm.Get("action"); action {
	case "", "source":
	case "preset":
		preset, ok := h.presets.FindByID(r.PostForm.Get("preset"))
		if !ok {
			h.chatSvc.Notify(st, "character preset not found")
			break
		}
		h.chatSvc.SelectSource(st, chat.SourceCustom)
		h.chatSvc.SetCustomCharacter(st, preset.Prompt)
	case "generate":
		if _, err := h.chatSvc.GenerateCharacter(r.Context(), st); err != nil {
			h.fail(r, st, err)
		}
	case "adopt":
		if _, err := h.chatSvc.AdoptCharacter(r.Context(), st); err != nil {
			h.fail(r, st, err)
		}
	default:
		h.chatSvc.Notify(st, "unknown action "+action)
	}

	rerun(w, r)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request, st *session.State) {
	if err := r.ParseForm(); err != nil {
		h.chatSvc.Notify(st, "invalid form submission")
		rerun(w, r)
		return
	}

	_, err := h.chatSvc.SendMessage(r.Context(), st, r.PostForm.Get("message"))
	if err != nil && !errors.Is(err, chatService.ErrEmptyMessage) {
		h.fail(r, st, err)
	}
	rerun(w, r)
}

func (h *Handler) fail(r *http.Request, st *session.State, err error) {
	hlog.FromRequest(r).Debug().Str("component", "ui").Err(err).Msg("operation rejected")
	h.chatSvc.Notify(st, err.Error())
}

// rerun sends the browser back to the page.
func rerun(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
