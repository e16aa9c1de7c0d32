package character

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/character-chat/internal/model/character"
	"github.com/zhouzirui/character-chat/pkg/utils"
)

// Handler serves the character presets.
type Handler struct {
	presets character.Store
}

// New creates the preset handler.
func New(presets character.Store) *Handler {
	return &Handler{presets: presets}
}

// RegisterRoutes mounts the preset routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleListCharacters)
	r.Get("/characters/{id}", h.handleGetCharacter)
}

func (h *Handler) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.presets.List())
}

func (h *Handler) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	preset, ok := h.presets.FindByID(chi.URLParam(r, "id"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "character preset not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, preset)
}
