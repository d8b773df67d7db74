package models

import (
	"time"
)

// Conversation - диалог ровно двух пользователей. Пара хранится упорядоченной
// (UserLowID < UserHighID), уникальный индекс по ней исключает дубли при
// одновременном первом контакте с обеих сторон.
type Conversation struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserLowID          int64     `gorm:"not null;uniqueIndex:idx_conversations_pair,priority:1;check:chk_conversations_pair,user_low_id < user_high_id" json:"user_low_id"`
	UserHighID         int64     `gorm:"not null;uniqueIndex:idx_conversations_pair,priority:2;index" json:"user_high_id"`
	LowUnread          int64     `gorm:"not null;default:0" json:"-"`
	HighUnread         int64     `gorm:"not null;default:0" json:"-"`
	LastMessageID      int64     `gorm:"not null;default:0" json:"last_message_id"`
	LastSenderID       int64     `gorm:"not null;default:0" json:"last_sender_id"`
	LastMessagePreview string    `gorm:"size:255" json:"last_message_preview"`
	LastMessageAt      time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt          time.Time `json:"created_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// OrderedPair приводит неупорядоченную пару к виду (low, high)
func OrderedPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasMember(userID int64) bool {
	return c.UserLowID == userID || c.UserHighID == userID
}

// Peer собеседник userID в этом диалоге
func (c *Conversation) Peer(userID int64) int64 {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

// UnreadColumn колонка счётчика непрочитанных для участника
func (c *Conversation) UnreadColumn(userID int64) string {
	if c.UserLowID == userID {
		return "low_unread"
	}
	return "high_unread"
}

func (c *Conversation) UnreadFor(userID int64) int64 {
	if c.UserLowID == userID {
		return c.LowUnread
	}
	return c.HighUnread
}

// Message - сообщение в диалоге. Порядок внутри диалога задаёт ID.
type Message struct {
	ID             int64      `gorm:"primaryKey;autoIncrement;index:idx_messages_conversation,priority:2" json:"id"`
	ConversationID int64      `gorm:"not null;index:idx_messages_conversation,priority:1" json:"conversation_id"`
	SenderID       int64      `gorm:"not null;index" json:"sender_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// TableName возвращает имя таблицы для модели Message
func (Message) TableName() string {
	return "messages"
}

// All модели для AutoMigrate
func All() []interface{} {
	return []interface{}{&User{}, &Post{}, &Comment{}, &Like{}, &Conversation{}, &Message{}}
}
