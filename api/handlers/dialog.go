package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tapspot/apperr"
	"tapspot/services"
)

type DialogHandlers struct {
	dialogs *services.DialogService
}

func NewDialogHandlers(dialogs *services.DialogService) *DialogHandlers {
	return &DialogHandlers{dialogs: dialogs}
}

type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content"`
}

func (h *DialogHandlers) ListConversations(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.dialogs.ListConversations(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// WithUser возвращает диалог с user_id, создавая его при необходимости
func (h *DialogHandlers) WithUser(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	peerID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || peerID <= 0 {
		apperr.Respond(c, apperr.Validation("invalid user_id"))
		return
	}
	conv, err := h.dialogs.GetOrCreateConversation(c.Request.Context(), userID, peerID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           conv.ID,
		"peer_id":      conv.Peer(userID),
		"unread_count": conv.UnreadFor(userID),
	})
}

// ListMessages - сообщения с собеседником :id
func (h *DialogHandlers) ListMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	peerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := messageQuery(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	conv, msgs, err := h.dialogs.ListMessagesWithPeer(ctx, userID, peerID, q)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	var convID int64
	if conv != nil {
		convID = conv.ID
		if c.Query("mark_read") == "true" {
			if _, err := h.dialogs.MarkRead(ctx, conv.ID, userID); err != nil {
				apperr.Respond(c, err)
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": convID, "messages": msgs})
}

func messageQuery(c *gin.Context) (services.MessageQuery, error) {
	q := services.MessageQuery{Limit: queryInt(c, "limit", 0)}
	if raw := c.Query("after_id"); raw != "" {
		after, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			return q, apperr.Validation("invalid after_id")
		}
		q.AfterID = &after
	}
	if raw := c.Query("before_id"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before <= 0 {
			return q, apperr.Validation("invalid before_id")
		}
		q.BeforeID = before
	}
	return q, nil
}

func (h *DialogHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}
	marked, err := h.dialogs.MarkRead(c.Request.Context(), convID, userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked, "unread_count": 0})
}

func (h *DialogHandlers) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("receiver_id is required"))
		return
	}
	msg, err := h.dialogs.SendTo(c.Request.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *DialogHandlers) UnreadTotal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	total, err := h.dialogs.UnreadTotal(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": total})
}
