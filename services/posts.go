package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tapspot/apperr"
	"tapspot/db"
	"tapspot/models"
)

const (
	defaultPostLimit = 100
	maxPostLimit     = 200
	postTitleMaxLen  = 200
)

type PostService struct {
	db *gorm.DB
}

func NewPostService(orm *gorm.DB) *PostService {
	return &PostService{db: orm}
}

// Bounds прямоугольник карты
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

type PostFilter struct {
	Type     string
	Search   string
	AuthorID int64
	Bounds   *Bounds
	Limit    int
}

type CreatePostInput struct {
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Type         string   `json:"type"`
	LocationName string   `json:"location_name"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// PostView пост с именем автора и числом комментариев
type PostView struct {
	models.Post
	AuthorName   string `json:"author_name"`
	CommentCount int64  `json:"comment_count"`
}

func (in *CreatePostInput) normalize() (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > postTitleMaxLen {
		return nil, apperr.Validation(fmt.Sprintf("title must be at most %d characters", postTitleMaxLen))
	}
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	postType := models.PostType(strings.TrimSpace(in.Type))
	if postType == "" {
		postType = models.PostTypePost
	}
	if !postType.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown post type %q", postType))
	}
	if in.Latitude == nil || in.Longitude == nil {
		return nil, apperr.Validation("latitude and longitude are required")
	}
	if err := ValidateCoordinates(*in.Latitude, *in.Longitude); err != nil {
		return nil, err
	}
	return &models.Post{
		Title:        title,
		Content:      content,
		Type:         postType,
		LocationName: strings.TrimSpace(in.LocationName),
		Latitude:     *in.Latitude,
		Longitude:    *in.Longitude,
	}, nil
}

// ValidateCoordinates проверяет широту и долготу
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return apperr.Validation("latitude must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return apperr.Validation("longitude must be between -180 and 180")
	}
	return nil
}

func (s *PostService) Create(ctx context.Context, authorID int64, in CreatePostInput) (*PostView, error) {
	post, err := in.normalize()
	if err != nil {
		return nil, err
	}
	post.AuthorID = authorID

	write := db.Write(ctx, s.db)
	author, err := findUser(write, authorID)
	if err != nil {
		return nil, err
	}
	if err := write.Create(post).Error; err != nil {
		return nil, apperr.Internal("create post", err)
	}
	return &PostView{Post: *post, AuthorName: author.DisplayName()}, nil
}

// List посты по фильтру, новые первыми
func (s *PostService) List(ctx context.Context, filter PostFilter) ([]PostView, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPostLimit
	}
	if limit > maxPostLimit {
		limit = maxPostLimit
	}

	read := db.Read(ctx, s.db)
	query := read.Model(&models.Post{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.AuthorID > 0 {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("title LIKE ? OR content LIKE ? OR location_name LIKE ?", pattern, pattern, pattern)
	}
	if b := filter.Bounds; b != nil {
		query = query.Where("latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}

	var posts []models.Post
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, apperr.Internal("list posts", err)
	}
	return postViews(read, posts)
}

func (s *PostService) Get(ctx context.Context, id int64) (*PostView, error) {
	read := db.Read(ctx, s.db)
	post, err := findPost(read, id)
	if err != nil {
		return nil, err
	}
	views, err := postViews(read, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// LikedBy посты, которые лайкнул пользователь, последние лайки первыми
func (s *PostService) LikedBy(ctx context.Context, userID int64) ([]PostView, error) {
	read := db.Read(ctx, s.db)
	var posts []models.Post
	err := read.Model(&models.Post{}).
		Joins("JOIN likes ON likes.target_id = posts.id AND likes.target_kind = ?", models.TargetPost).
		Where("likes.user_id = ?", userID).
		Order("likes.id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, apperr.Internal("list liked posts", err)
	}
	return postViews(read, posts)
}

// Delete удаляет пост вместе с комментариями и лайками. Только автор.
func (s *PostService) Delete(ctx context.Context, postID, userID int64) error {
	return db.Write(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		post, err := lockPost(tx, postID, lockUpdate)
		if err != nil {
			return err
		}
		if post.AuthorID != userID {
			return apperr.Forbidden("only the author can delete this post")
		}

		var commentIDs []int64
		if err := tx.Model(&models.Comment{}).Where("post_id = ?", postID).Pluck("id", &commentIDs).Error; err != nil {
			return apperr.Internal("load comments", err)
		}
		if len(commentIDs) > 0 {
			if err := tx.Where("target_kind = ? AND target_id IN ?", models.TargetComment, commentIDs).
				Delete(&models.Like{}).Error; err != nil {
				return apperr.Internal("delete comment likes", err)
			}
		}
		if err := tx.Where("target_kind = ? AND target_id = ?", models.TargetPost, postID).
			Delete(&models.Like{}).Error; err != nil {
			return apperr.Internal("delete post likes", err)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return apperr.Internal("delete comments", err)
		}
		if err := tx.Delete(&models.Post{}, postID).Error; err != nil {
			return apperr.Internal("delete post", err)
		}
		return nil
	})
}

// Блокировки строк. sqlite их не поддерживает, там транзакции и так идут по одной.
const (
	lockShare  = "SHARE"
	lockUpdate = "UPDATE"
)

// lockPost читает пост с блокировкой строки до конца транзакции. Удаление
// поста берёт UPDATE, вставка комментариев и лайков к нему - SHARE.
func lockPost(tx *gorm.DB, id int64, strength string) (*models.Post, error) {
	return findPost(tx.Clauses(clause.Locking{Strength: strength}), id)
}

func findPost(tx *gorm.DB, id int64) (*models.Post, error) {
	var post models.Post
	if err := tx.First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("post not found")
		}
		return nil, apperr.Internal("load post", err)
	}
	return &post, nil
}

func postViews(tx *gorm.DB, posts []models.Post) ([]PostView, error) {
	views := make([]PostView, 0, len(posts))
	if len(posts) == 0 {
		return views, nil
	}
	authorIDs := make([]int64, 0, len(posts))
	postIDs := make([]int64, 0, len(posts))
	for _, p := range posts {
		authorIDs = append(authorIDs, p.AuthorID)
		postIDs = append(postIDs, p.ID)
	}
	names, err := displayNames(tx, authorIDs)
	if err != nil {
		return nil, apperr.Internal("load authors", err)
	}
	counts, err := commentCounts(tx, postIDs)
	if err != nil {
		return nil, apperr.Internal("count comments", err)
	}
	for _, p := range posts {
		views = append(views, PostView{Post: p, AuthorName: names[p.AuthorID], CommentCount: counts[p.ID]})
	}
	return views, nil
}
