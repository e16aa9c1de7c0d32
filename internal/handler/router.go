package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/character-chat/internal/config"
	"github.com/zhouzirui/character-chat/internal/handler/character"
	"github.com/zhouzirui/character-chat/internal/handler/chat"
	"github.com/zhouzirui/character-chat/internal/handler/ui"
	"github.com/zhouzirui/character-chat/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/character-chat/internal/middleware"
	characterModel "github.com/zhouzirui/character-chat/internal/model/character"
	chatService "github.com/zhouzirui/character-chat/internal/service/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
	"github.com/zhouzirui/character-chat/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(
	serverCfg config.ServerConfig,
	logger zerolog.Logger,
	sessions *session.Manager,
	presets characterModel.Store,
	chatSvc *chatService.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": sessions.Len(),
		})
	})

	characterHandler := character.New(presets)
	chatHandler := chat.New(chatSvc, sessions)
	wsHandler := ws.New(chatSvc, serverCfg.AllowedOrigins)
	uiHandler := ui.New(chatSvc, presets)

	r.Group(func(web chi.Router) {
		web.Use(middlewarePkg.Session(sessions, serverCfg.CookieSecure))
		uiHandler.RegisterRoutes(web)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.CORS(serverCfg.AllowedOrigins))

		characterHandler.RegisterRoutes(api)

		api.Group(func(stateful chi.Router) {
			stateful.Use(middlewarePkg.Session(sessions, serverCfg.CookieSecure))
			chatHandler.RegisterRoutes(stateful)
			wsHandler.RegisterRoutes(stateful)
		})
	})

	return r
}
