package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	chatHandler "github.com/zhouzirui/character-chat/internal/handler/chat"
	"github.com/zhouzirui/character-chat/internal/middleware"
	"github.com/zhouzirui/character-chat/internal/model/chat"
	chatService "github.com/zhouzirui/character-chat/internal/service/chat"
	"github.com/zhouzirui/character-chat/internal/service/session"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Frame types.
const (
	TypeUser     = "user"
	TypeSource   = "source"
	TypeGenerate = "generate"
	TypeAdopt    = "adopt"
	TypeMessage  = "message"

	TypeState = "state"
	TypeError = "error"
)

// Handler drives the chat session over a WebSocket.
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler. Cross-origin upgrades are accepted only
// from allowedOrigins.
func New(chatSvc *chatService.Service, allowedOrigins []string) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// InboundFrame is a client request.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is a server push: the session state or an error.
type OutboundFrame struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorData describes a rejected frame.
type ErrorData struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type userData struct {
	Username string `json:"username"`
}

type sourceData struct {
	Source          string  `json:"source"`
	CustomCharacter *string `json:"customCharacter,omitempty"`
}

type messageData struct {
	Text string `json:"text"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	st, ok := middleware.SessionFrom(r.Context())
	if !ok {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	logger := hlog.FromRequest(r).With().Str("component", "websocket").Str("session", st.ID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	logger.Debug().Msg("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	h.sendState(conn, st, &logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var frame InboundFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Msg("read failed")
				}
				return
			}

			_ = conn.SetReadDeadline(time.Now().Add(pongWait))

			if err := h.handleFrame(ctx, st, frame); err != nil {
				sendError(conn, err, &logger)
				continue
			}
			h.sendState(conn, st, &logger)
		}
	}
}

// handleFrame applies one client request to the session.
func (h *Handler) handleFrame(ctx context.Context, st *session.State, frame InboundFrame) error {
	switch frame.Type {
	case TypeUser:
		var data userData
		if err := decodeData(frame.Data, &data); err != nil {
			return err
		}
		h.chatSvc.SetUsername(ctx, st, data.Username)
		return nil

	case TypeSource:
		var data sourceData
		if err := decodeData(frame.Data, &data); err != nil {
			return err
		}
		source, err := chat.ParseCharacterSource(data.Source)
		if err != nil {
			return badRequest(err)
		}
		h.chatSvc.SelectSource(st, source)
		if data.CustomCharacter != nil {
			h.chatSvc.SetCustomCharacter(st, *data.CustomCharacter)
		}
		return nil

	case TypeGenerate:
		_, err := h.chatSvc.GenerateCharacter(ctx, st)
		return err

	case TypeAdopt:
		_, err := h.chatSvc.AdoptCharacter(ctx, st)
		return err

	case TypeMessage:
		var data messageData
		if err := decodeData(frame.Data, &data); err != nil {
			return err
		}
		_, err := h.chatSvc.SendMessage(ctx, st, data.Text)
		return err

	default:
		return badRequest(fmt.Errorf("unknown frame type %q", frame.Type))
	}
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err: err} }

func decodeData(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return badRequest(errors.New("frame data is required"))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badRequest(fmt.Errorf("invalid frame data: %w", err))
	}
	return nil
}

func statusFor(err error) int {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	return chatHandler.StatusFor(err)
}

func (h *Handler) sendState(conn *websocket.Conn, st *session.State, logger *zerolog.Logger) {
	write(conn, OutboundFrame{Type: TypeState, Data: h.chatSvc.View(st), Timestamp: time.Now().Unix()}, logger)
}

func sendError(conn *websocket.Conn, err error, logger *zerolog.Logger) {
	write(conn, OutboundFrame{
		Type:      TypeError,
		Data:      ErrorData{Message: err.Error(), Status: statusFor(err)},
		Timestamp: time.Now().Unix(),
	}, logger)
}

func write(conn *websocket.Conn, frame OutboundFrame, logger *zerolog.Logger) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		logger.Warn().Err(err).Str("type", frame.Type).Msg("write failed")
	}
}

// pingLoop keeps the connection alive. WriteControl may run concurrently with WriteJSON.
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if u.Host == r.Host {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}
