package services

import (
	"context"
	"time"
)

// Типы событий канала доставки
const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventRead      = "read"
	EventPong      = "pong"
	EventError     = "error"
)

type MessagePayload struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event - то, что уходит клиенту по WebSocket
type Event struct {
	Type           string          `json:"type"`
	UserID         int64           `json:"user_id,omitempty"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	Message        *MessagePayload `json:"message,omitempty"`
	IsMe           bool            `json:"is_me,omitempty"`
	ReaderID       int64           `json:"reader_id,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Notifier доставляет события пользователю по возможности. Ошибки доставки
// не поднимаются наверх: клиент всё равно сверяется через опрос.
type Notifier interface {
	Notify(ctx context.Context, userID int64, event Event) bool
}

// LocalNotifier доставляет только в соединения этого процесса
type LocalNotifier struct {
	registry *Registry
}

func NewLocalNotifier(registry *Registry) *LocalNotifier {
	return &LocalNotifier{registry: registry}
}

func (n *LocalNotifier) Notify(_ context.Context, userID int64, event Event) bool {
	if !n.registry.Send(userID, event) {
		recordPush("local", pushOffline)
		return false
	}
	recordPush("local", pushDelivered)
	return true
}
