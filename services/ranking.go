package services

import (
	"context"

	"gorm.io/gorm"

	"tapspot/apperr"
	"tapspot/db"
	"tapspot/models"
)

type FeaturedType string

const (
	FeaturedPost    FeaturedType = "post"
	FeaturedComment FeaturedType = "comment"
)

// Причины выбора победителя
const (
	ReasonNoComments  = "no_comments"
	ReasonPostMore    = "post_more_likes"
	ReasonTiePost     = "tie_post_wins"
	ReasonCommentMore = "comment_more_likes"
)

// Featured результат сравнения поста с его лучшим комментарием
type Featured struct {
	Type            FeaturedType
	Post            *models.Post
	Comment         *models.Comment
	LikeCount       int64
	TopCommentLikes int64
	HasComments     bool
	Reason          string
	AuthorName      string
}

// PickFeatured выбирает, что показать: пост или его самый залайканный
// комментарий. Комментарий побеждает только при строго большем числе лайков.
// Среди комментариев с равным числом лайков побеждает более ранний
// (затем с меньшим id). Комментарии чужих постов игнорируются.
func PickFeatured(post *models.Post, comments []models.Comment) Featured {
	var top *models.Comment
	for i := range comments {
		c := &comments[i]
		if c.PostID != post.ID {
			continue
		}
		if top == nil || beats(c, top) {
			top = c
		}
	}

	res := Featured{Type: FeaturedPost, Post: post, LikeCount: post.LikeCount}
	if top == nil {
		res.Reason = ReasonNoComments
		return res
	}
	res.HasComments = true
	res.TopCommentLikes = top.LikeCount

	switch {
	case top.LikeCount > post.LikeCount:
		res.Type = FeaturedComment
		res.Comment = top
		res.LikeCount = top.LikeCount
		res.Reason = ReasonCommentMore
	case top.LikeCount == post.LikeCount:
		res.Reason = ReasonTiePost
	default:
		res.Reason = ReasonPostMore
	}
	return res
}

func beats(c, best *models.Comment) bool {
	if c.LikeCount != best.LikeCount {
		return c.LikeCount > best.LikeCount
	}
	if !c.CreatedAt.Equal(best.CreatedAt) {
		return c.CreatedAt.Before(best.CreatedAt)
	}
	return c.ID < best.ID
}

type RankingService struct {
	db *gorm.DB
}

func NewRankingService(orm *gorm.DB) *RankingService {
	return &RankingService{db: orm}
}

// Featured считается на каждый запрос и не кешируется.
// Чтение идёт с мастера, чтобы только что поставленный лайк был учтён.
func (s *RankingService) Featured(ctx context.Context, postID int64) (*Featured, error) {
	conn := db.Write(ctx, s.db)
	post, err := findPost(conn, postID)
	if err != nil {
		return nil, err
	}
	var comments []models.Comment
	if err := conn.Where("post_id = ?", postID).Find(&comments).Error; err != nil {
		return nil, apperr.Internal("load comments", err)
	}
	res := PickFeatured(post, comments)

	authorID := post.AuthorID
	if res.Comment != nil {
		authorID = res.Comment.AuthorID
	}
	names, err := displayNames(conn, []int64{authorID})
	if err != nil {
		return nil, apperr.Internal("load author", err)
	}
	res.AuthorName = names[authorID]
	return &res, nil
}
