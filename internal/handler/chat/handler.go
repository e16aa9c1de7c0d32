package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/character-chat/internal/middleware"
	"github.com/zhouzirui/character-chat/internal/model/chat"
	chatService "github.com/zhouzirui/character-chat/internal/service/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
	"github.com/zhouzirui/character-chat/pkg/utils"
)

// Handler exposes the session operations as a JSON API.
type Handler struct {
	chatSvc  *chatService.Service
	sessions *session.Manager
}

// New creates the JSON chat handler.
func New(chatSvc *chatService.Service, sessions *session.Manager) *Handler {
	return &Handler{chatSvc: chatSvc, sessions: sessions}
}

// RegisterRoutes mounts the JSON routes. Requests must carry a session (see middleware.Session).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.withSession(h.handleGetSession))
	r.Delete("/session", h.withSession(h.handleEndSession))
	r.Put("/session/user", h.withSession(h.handleSetUser))
	r.Put("/session/source", h.withSession(h.handleSetSource))
	r.Post("/character/generate", h.withSession(h.handleGenerate))
	r.Post("/character/adopt", h.withSession(h.handleAdopt))
	r.Post("/messages", h.withSession(h.handleSendMessage))
}

type sessionHandlerFunc func(w http.ResponseWriter, r *http.Request, st *session.State)

func (h *Handler) withSession(next sessionHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := middleware.SessionFrom(r.Context())
		if !ok {
			utils.RespondError(w, http.StatusInternalServerError, "session unavailable")
			return
		}
		next(w, r, st)
	}
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request, st *session.State) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.View(st))
}

// handleEndSession forgets the session. The history record stays on disk.
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request, st *session.State) {
	h.sessions.Delete(st.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetUser(w http.ResponseWriter, r *http.Request, st *session.State) {
	var payload struct {
		Username string `json:"username"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.chatSvc.SetUsername(r.Context(), st, payload.Username)
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.View(st))
}

func (h *Handler) handleSetSource(w http.ResponseWriter, r *http.Request, st *session.State) {
	var payload struct {
		Source          string  `json:"source"`
		CustomCharacter *string `json:"customCharacter,omitempty"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	source, err := chat.ParseCharacterSource(payload.Source)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.chatSvc.SelectSource(st, source)
	if payload.CustomCharacter != nil {
		h.chatSvc.SetCustomCharacter(st, *payload.CustomCharacter)
	}
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.View(st))
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request, st *session.State) {
	if _, err := h.chatSvc.GenerateCharacter(r.Context(), st); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.View(st))
}

func (h *Handler) handleAdopt(w http.ResponseWriter, r *http.Request, st *session.State) {
	if _, err := h.chatSvc.AdoptCharacter(r.Context(), st); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.View(st))
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request, st *session.State) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.chatSvc.SendMessage(r.Context(), st, payload.Text); err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.View(st))
}

// StatusFor maps chat service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrEmptyCharacter):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrUsernameRequired),
		errors.Is(err, chatService.ErrNoConversation),
		errors.Is(err, chatService.ErrNoGeneratedCharacter):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrModelFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
