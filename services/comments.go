package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"tapspot/apperr"
	"tapspot/db"
	"tapspot/models"
)

const commentMaxLen = 1000

type CommentService struct {
	db *gorm.DB
}

func NewCommentService(orm *gorm.DB) *CommentService {
	return &CommentService{db: orm}
}

type CommentView struct {
	models.Comment
	AuthorName string `json:"author_name"`
}

// List комментарии поста: самые залайканные первыми, при равенстве старые первыми
func (s *CommentService) List(ctx context.Context, postID int64) ([]CommentView, error) {
	read := db.Read(ctx, s.db)
	if _, err := findPost(read, postID); err != nil {
		return nil, err
	}
	var comments []models.Comment
	err := read.Where("post_id = ?", postID).
		Order("like_count DESC, created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, apperr.Internal("list comments", err)
	}
	return commentViews(read, comments)
}

// Create добавляет комментарий. Ответ возможен только на комментарий того же поста.
func (s *CommentService) Create(ctx context.Context, postID, authorID int64, content string, replyToID *int64) (*CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > commentMaxLen {
		return nil, apperr.Validation(fmt.Sprintf("comment must be at most %d characters", commentMaxLen))
	}

	var view *CommentView
	err := db.Write(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		// пост не может исчезнуть до коммита вставки
		if _, err := lockPost(tx, postID, lockShare); err != nil {
			return err
		}
		author, err := findUser(tx, authorID)
		if err != nil {
			return err
		}

		comment := &models.Comment{
			PostID:   postID,
			AuthorID: authorID,
			Content:  content,
		}
		if replyToID != nil && *replyToID > 0 {
			target, err := findComment(tx, *replyToID)
			if err != nil {
				return err
			}
			if target.PostID != postID {
				return apperr.Validation("reply target belongs to another post")
			}
			names, err := displayNames(tx, []int64{target.AuthorID})
			if err != nil {
				return apperr.Internal("load reply author", err)
			}
			comment.ReplyToID = &target.ID
			comment.ReplyToUser = names[target.AuthorID]
		}

		if err := tx.Create(comment).Error; err != nil {
			return apperr.Internal("create comment", err)
		}
		view = &CommentView{Comment: *comment, AuthorName: author.DisplayName()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Delete удаляет комментарий и его лайки. Соседние комментарии и пост не трогаются.
func (s *CommentService) Delete(ctx context.Context, commentID, userID int64) error {
	return db.Write(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		comment, err := findComment(tx, commentID)
		if err != nil {
			return err
		}
		if comment.AuthorID != userID {
			return apperr.Forbidden("only the author can delete this comment")
		}
		if err := tx.Where("target_kind = ? AND target_id = ?", models.TargetComment, commentID).
			Delete(&models.Like{}).Error; err != nil {
			return apperr.Internal("delete comment likes", err)
		}
		if err := tx.Delete(&models.Comment{}, commentID).Error; err != nil {
			return apperr.Internal("delete comment", err)
		}
		return nil
	})
}

// CountByPosts число комментариев для набора постов
func (s *CommentService) CountByPosts(ctx context.Context, postIDs []int64) (map[int64]int64, error) {
	counts, err := commentCounts(db.Read(ctx, s.db), postIDs)
	if err != nil {
		return nil, apperr.Internal("count comments", err)
	}
	return counts, nil
}

// LikeCounts число лайков комментариев; для неизвестных id - ноль
func (s *CommentService) LikeCounts(ctx context.Context, commentIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(commentIDs))
	for _, id := range commentIDs {
		counts[id] = 0
	}
	if len(commentIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		ID        int64
		LikeCount int64
	}
	err := db.Read(ctx, s.db).Model(&models.Comment{}).
		Select("id, like_count").
		Where("id IN ?", uniqueIDs(commentIDs)).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("count comment likes", err)
	}
	for _, r := range rows {
		counts[r.ID] = r.LikeCount
	}
	return counts, nil
}

func findComment(tx *gorm.DB, id int64) (*models.Comment, error) {
	var comment models.Comment
	if err := tx.First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("comment not found")
		}
		return nil, apperr.Internal("load comment", err)
	}
	return &comment, nil
}

func commentCounts(tx *gorm.DB, postIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PostID int64
		Total  int64
	}
	err := tx.Model(&models.Comment{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", uniqueIDs(postIDs)).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.PostID] = r.Total
	}
	return counts, nil
}

func commentViews(tx *gorm.DB, comments []models.Comment) ([]CommentView, error) {
	views := make([]CommentView, 0, len(comments))
	if len(comments) == 0 {
		return views, nil
	}
	ids := make([]int64, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}
	names, err := displayNames(tx, ids)
	if err != nil {
		return nil, apperr.Internal("load authors", err)
	}
	for _, c := range comments {
		views = append(views, CommentView{Comment: c, AuthorName: names[c.AuthorID]})
	}
	return views, nil
}
