package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/character-chat/internal/config"
	"github.com/zhouzirui/character-chat/internal/handler"
	"github.com/zhouzirui/character-chat/internal/model/character"
	"github.com/zhouzirui/character-chat/internal/service/ai"
	"github.com/zhouzirui/character-chat/internal/service/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
	"github.com/zhouzirui/character-chat/internal/storage/history"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	historyStore, err := history.NewFileStore(cfg.History.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history directory")
	}

	aiService, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI service")
	}
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("AI service initialized")

	sessions := session.NewManager(cfg.Session.IdleTTL)
	if err := sessions.StartSweeper(ctx, cfg.Session.SweepSchedule); err != nil {
		log.Fatal().Err(err).Msg("failed to start session sweeper")
	}

	presets := character.NewMemoryStore(character.Seed())
	chatService := chat.NewService(historyStore, aiService)

	router := handler.NewRouter(cfg.Server, logger, sessions, presets, chatService)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("character chat listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
