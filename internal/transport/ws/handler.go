// Package ws is the websocket transport of the real-time hub.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kirinyoku/slotgo/internal/auth"
	"github.com/kirinyoku/slotgo/internal/hub"
)

type Config struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

type Handler struct {
	hub      *hub.Hub
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	log      *slog.Logger
	cfg      Config
}

func NewHandler(h *hub.Hub, verifier *auth.Verifier, log *slog.Logger, cfg Config) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}

	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}

	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 << 10
	}

	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}

	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		hub:      h,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		log: log.With("component", "ws"),
		cfg: cfg,
	}
}

type envelope struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Serve authenticates the request and upgrades it. The token comes from the
// "token" query parameter or an Authorization bearer header.
//
// @Summary  Real-time room connection (websocket)
// @Param    token  query  string  false  "access token"
// @Success  101  {string}  string  "switching protocols"
// @Failure  401  {object}  errorResponse
// @Router   /ws [get]
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.GetHeader("Authorization"))
	}

	claims, err := h.verifier.Parse(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.log.Debug("upgrade failed", "err", err)
		return
	}

	cn := newConn(uuid.NewString(), ws, h.cfg.SendBuffer)
	h.hub.Register(cn, hub.Identity{
		UserID: claims.UserID(),
		Name:   claims.Display(),
		Email:  claims.Email,
		Role:   claims.Role,
	})

	h.log.Info("client connected", "conn_id", cn.id, "user_id", claims.UserID())

	go h.writePump(cn)
	h.readPump(cn)
}

func (h *Handler) readPump(cn *conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.hub.Disconnect(context.Background(), cn.id)
		cn.close()
		h.log.Info("client disconnected", "conn_id", cn.id)
	}()

	cn.ws.SetReadLimit(h.cfg.MaxMessageSize)
	_ = cn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		var env envelope
		if err := cn.ws.ReadJSON(&env); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				_ = cn.Send(hub.Event{Name: "error", Data: hub.ErrorPayload{Message: "malformed message"}})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read failed", "conn_id", cn.id, "err", err)
			}
			return
		}

		h.dispatch(ctx, cn, env)
	}
}

func (h *Handler) writePump(cn *conn) {
	ticker := time.NewTicker(h.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		cn.close()
	}()

	for {
		select {
		case <-cn.closed:
			return
		case ev := <-cn.send:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := cn.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := cn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one client envelope to the hub.
func (h *Handler) dispatch(ctx context.Context, c hub.Conn, env envelope) {
	id := c.ID()

	switch env.Event {
	case hub.EventJoinRoom:
		var req hub.JoinRequest
		if h.decode(c, env, &req) {
			h.hub.Join(ctx, id, env.RequestID, req.RoomKey)
		}
	case hub.EventLeaveRoom:
		h.hub.Leave(ctx, id, env.RequestID)
	case hub.EventCheckAvailability:
		var req hub.AvailabilityRequest
		if h.decode(c, env, &req) {
			h.hub.CheckAvailability(ctx, id, env.RequestID, req)
		}
	case hub.EventDeclareSelection:
		var req hub.SelectionRequest
		if h.decode(c, env, &req) {
			h.hub.DeclareSelection(ctx, id, env.RequestID, req)
		}
	case hub.EventCheckMultiDay:
		var req hub.MultiDayRequest
		if h.decode(c, env, &req) {
			h.hub.DeclareMultiDay(ctx, id, env.RequestID, req)
		}
	case hub.EventBookingConfirmed:
		var req hub.BookingConfirmedRequest
		if h.decode(c, env, &req) {
			h.hub.ConfirmFromClient(ctx, id, env.RequestID, req)
		}
	case hub.EventResetSelections:
		var req hub.ResetRequest
		if h.decode(c, env, &req) {
			h.hub.ResetSelections(ctx, id, env.RequestID, req.VenueID)
		}
	default:
		_ = c.Send(hub.Event{
			Name:      "error",
			RequestID: env.RequestID,
			Data:      hub.ErrorPayload{Message: fmt.Sprintf("unknown event %q", env.Event)},
		})
	}
}

func (h *Handler) decode(c hub.Conn, env envelope, v any) bool {
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		_ = c.Send(hub.Event{
			Name:      hub.ErrorEvent(env.Event),
			RequestID: env.RequestID,
			Data:      hub.ErrorPayload{Message: "invalid payload: " + err.Error()},
		})
		return false
	}
	return true
}
