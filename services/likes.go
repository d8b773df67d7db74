package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tapspot/apperr"
	"tapspot/db"
	"tapspot/models"
)

// сколько раз переигрываем переключение, если параллельный запрос
// успел вставить лайк между нашими DELETE и INSERT
const toggleAttempts = 3

var errToggleRace = errors.New("like toggled concurrently")

type LikeService struct {
	db *gorm.DB
}

func NewLikeService(orm *gorm.DB) *LikeService {
	return &LikeService{db: orm}
}

type ToggleResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

func targetModel(kind models.TargetKind) (interface{}, error) {
	switch kind {
	case models.TargetPost:
		return &models.Post{}, nil
	case models.TargetComment:
		return &models.Comment{}, nil
	}
	return nil, apperr.Validation(fmt.Sprintf("unknown like target %q", kind))
}

// lockTarget блокирует цель лайка до конца транзакции. Для комментария сначала
// берётся его пост, в том же порядке, что и при удалении поста.
func lockTarget(tx *gorm.DB, kind models.TargetKind, targetID int64) error {
	if kind == models.TargetPost {
		_, err := lockPost(tx, targetID, lockUpdate)
		return err
	}
	comment, err := findComment(tx, targetID)
	if err != nil {
		return err
	}
	if _, err := lockPost(tx, comment.PostID, lockShare); err != nil {
		return err
	}
	_, err = findComment(tx.Clauses(clause.Locking{Strength: lockUpdate}), targetID)
	return err
}

// Toggle ставит или снимает лайк. Строка лайка и счётчик цели меняются в одной
// транзакции, уникальный индекс (user, kind, target) не дает задвоить лайк.
func (s *LikeService) Toggle(ctx context.Context, userID int64, kind models.TargetKind, targetID int64) (*ToggleResult, error) {
	model, err := targetModel(kind)
	if err != nil {
		return nil, err
	}

	var result ToggleResult
	for attempt := 0; attempt < toggleAttempts; attempt++ {
		err = db.Write(ctx, s.db).Transaction(func(tx *gorm.DB) error {
			if err := lockTarget(tx, kind, targetID); err != nil {
				return err
			}

			removed := tx.Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, kind, targetID).
				Delete(&models.Like{})
			if removed.Error != nil {
				return apperr.Internal("delete like", removed.Error)
			}

			delta := int64(-1)
			result.Liked = false
			if removed.RowsAffected == 0 {
				inserted := tx.Clauses(clause.OnConflict{DoNothing: true}).
					Create(&models.Like{UserID: userID, TargetKind: kind, TargetID: targetID})
				if inserted.Error != nil {
					return apperr.Internal("insert like", inserted.Error)
				}
				if inserted.RowsAffected == 0 {
					return errToggleRace
				}
				delta = 1
				result.Liked = true
			}

			if err := tx.Model(model).Where("id = ?", targetID).
				UpdateColumn("like_count", gorm.Expr("like_count + ?", delta)).Error; err != nil {
				return apperr.Internal("update like count", err)
			}
			return tx.Model(model).Where("id = ?", targetID).Pluck("like_count", &result.LikeCount).Error
		})
		if !errors.Is(err, errToggleRace) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, errToggleRace) {
			return nil, apperr.Conflict("like is being toggled concurrently, retry")
		}
		return nil, err
	}
	return &result, nil
}

// Check для каждой цели сообщает, лайкнул ли её пользователь
func (s *LikeService) Check(ctx context.Context, userID int64, kind models.TargetKind, targetIDs []int64) (map[int64]bool, error) {
	liked := make(map[int64]bool, len(targetIDs))
	for _, id := range targetIDs {
		liked[id] = false
	}
	if len(targetIDs) == 0 {
		return liked, nil
	}
	var ids []int64
	err := db.Read(ctx, s.db).Model(&models.Like{}).
		Where("user_id = ? AND target_kind = ? AND target_id IN ?", userID, kind, uniqueIDs(targetIDs)).
		Pluck("target_id", &ids).Error
	if err != nil {
		return nil, apperr.Internal("check likes", err)
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}
