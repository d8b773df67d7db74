package models

import "time"

type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// Like - отметка "нравится". Уникальность (user, kind, target) держит индекс,
// а не проверка в коде.
type Like struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64      `gorm:"not null;uniqueIndex:idx_likes_user_target,priority:1" json:"user_id"`
	TargetKind TargetKind `gorm:"size:10;not null;uniqueIndex:idx_likes_user_target,priority:2;index:idx_likes_target,priority:1" json:"target_kind"`
	TargetID   int64      `gorm:"not null;uniqueIndex:idx_likes_user_target,priority:3;index:idx_likes_target,priority:2" json:"target_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Like) TableName() string {
	return "likes"
}
