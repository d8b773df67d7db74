package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tapspot/apperr"
	"tapspot/logger"
	"tapspot/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Входящие кадры живого канала
const (
	frameChat = "chat"
	frameRead = "read"
	framePing = "ping"
)

type inboundFrame struct {
	Type           string `json:"type"`
	ReceiverID     int64  `json:"receiver_id"`
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
}

type WSHandler struct {
	registry *services.Registry
	dialogs  *services.DialogService
	presence services.Presence
	limiter  *services.SendLimiter
	log      *zap.Logger
	buffer   int
}

func NewWSHandler(registry *services.Registry, dialogs *services.DialogService, presence services.Presence,
	limiter *services.SendLimiter, log *zap.Logger, buffer int) *WSHandler {
	return &WSHandler{
		registry: registry,
		dialogs:  dialogs,
		presence: presence,
		limiter:  limiter,
		log:      log,
		buffer:   buffer,
	}
}

// Serve - WebSocket endpoint живого канала. Токен проверяется до апгрейда.
func (h *WSHandler) Serve(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.UserID(userID), zap.Error(err))
		return
	}

	client := services.NewClient(userID, conn, h.buffer)
	client.Push(services.Event{Type: services.EventConnected, UserID: userID})
	h.registry.Register(userID, client)
	h.presence.Connected(context.Background(), userID)
	go client.WritePump()

	ctx := c.Request.Context()
	err = client.ReadPump(func(data []byte) {
		h.handleFrame(ctx, client, data)
	})
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.log.Debug("websocket closed", logger.UserID(userID), zap.Error(err))
	}

	h.registry.Unregister(userID, client)
	client.Close()
	h.presence.Disconnected(context.Background(), userID)
}

func (h *WSHandler) handleFrame(ctx context.Context, client *services.Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.pushError(client, apperr.Validation("malformed frame"))
		return
	}

	userID := client.UserID()
	switch frame.Type {
	case framePing:
		client.Push(services.Event{Type: services.EventPong})
	case frameChat:
		if h.limiter != nil && !h.limiter.Allow(userID) {
			h.pushError(client, apperr.RateLimited("too many messages"))
			return
		}
		// подтверждение придёт отправителю эхом с is_me
		if _, err := h.dialogs.SendTo(ctx, userID, frame.ReceiverID, frame.Content); err != nil {
			h.pushError(client, err)
		}
	case frameRead:
		if _, err := h.dialogs.MarkRead(ctx, frame.ConversationID, userID); err != nil {
			h.pushError(client, err)
		}
	default:
		h.pushError(client, apperr.Validation("unknown frame type"))
	}
}

func (h *WSHandler) pushError(client *services.Client, err error) {
	body := apperr.Body(err)
	client.Push(services.Event{Type: services.EventError, Code: string(body.Code), Error: body.Message})
}
