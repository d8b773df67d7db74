package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tapspot/apperr"
	"tapspot/models"
	"tapspot/services"
)

type PostHandlers struct {
	posts    *services.PostService
	comments *services.CommentService
	likes    *services.LikeService
	ranking  *services.RankingService
}

func NewPostHandlers(posts *services.PostService, comments *services.CommentService, likes *services.LikeService, ranking *services.RankingService) *PostHandlers {
	return &PostHandlers{posts: posts, comments: comments, likes: likes, ranking: ranking}
}

// ListPosts - посты с фильтрами type, search, author_id и рамкой карты
func (h *PostHandlers) ListPosts(c *gin.Context) {
	filter := services.PostFilter{
		Type:   c.Query("type"),
		Search: c.Query("search"),
		Limit:  queryInt(c, "limit", 0),
	}
	if raw := c.Query("author_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			apperr.Respond(c, apperr.Validation("invalid author_id"))
			return
		}
		filter.AuthorID = id
	}
	bounds, err := parseBounds(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	filter.Bounds = bounds

	posts, err := h.posts.List(c.Request.Context(), filter)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// parseBounds читает min_lat, max_lat, min_lng, max_lng; все четыре или ни одного
func parseBounds(c *gin.Context) (*services.Bounds, error) {
	keys := []string{"min_lat", "max_lat", "min_lng", "max_lng"}
	values := make([]float64, 0, len(keys))
	for _, key := range keys {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, apperr.Validation("invalid " + key)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil
	}
	if len(values) != len(keys) {
		return nil, apperr.Validation("bounds need min_lat, max_lat, min_lng and max_lng")
	}
	b := &services.Bounds{MinLat: values[0], MaxLat: values[1], MinLng: values[2], MaxLng: values[3]}
	if err := services.ValidateCoordinates(b.MinLat, b.MinLng); err != nil {
		return nil, err
	}
	if err := services.ValidateCoordinates(b.MaxLat, b.MaxLng); err != nil {
		return nil, err
	}
	return b, nil
}

func (h *PostHandlers) GetPost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	post, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *PostHandlers) CreatePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.CreatePostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}
	post, err := h.posts.Create(c.Request.Context(), userID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *PostHandlers) DeletePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.posts.Delete(c.Request.Context(), id, userID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *PostHandlers) MyPosts(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	posts, err := h.posts.List(c.Request.Context(), services.PostFilter{AuthorID: userID, Limit: queryInt(c, "limit", 0)})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// LikePost переключает лайк поста
func (h *PostHandlers) LikePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.likes.Toggle(c.Request.Context(), userID, models.TargetPost, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckLikes - какие из post_ids лайкнул текущий пользователь
func (h *PostHandlers) CheckLikes(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ids, err := parseIDList(c.Query("post_ids"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	liked, err := h.likes.Check(c.Request.Context(), userID, models.TargetPost, ids)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": idMap(liked)})
}

func (h *PostHandlers) MyLikes(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	posts, err := h.posts.LikedBy(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// CommentCounts - число комментариев для post_ids
func (h *PostHandlers) CommentCounts(c *gin.Context) {
	ids, err := parseIDList(c.Query("post_ids"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	counts, err := h.comments.CountByPosts(c.Request.Context(), ids)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	for _, id := range ids {
		if _, ok := counts[id]; !ok {
			counts[id] = 0
		}
	}
	c.JSON(http.StatusOK, gin.H{"counts": idMap(counts)})
}

type featuredItem struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	AuthorID  int64     `json:"author_id"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
}

type pkResult struct {
	Winner          string `json:"winner"`
	PostLikes       int64  `json:"post_likes"`
	TopCommentLikes *int64 `json:"top_comment_likes"`
	Reason          string `json:"reason"`
}

// BestComment - пост или его лучший комментарий
func (h *PostHandlers) BestComment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.ranking.Featured(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	item := featuredItem{
		ID:        res.Post.ID,
		Type:      string(services.FeaturedPost),
		Title:     res.Post.Title,
		Content:   res.Post.Content,
		Author:    res.AuthorName,
		AuthorID:  res.Post.AuthorID,
		LikeCount: res.LikeCount,
		CreatedAt: res.Post.CreatedAt,
	}
	if res.Comment != nil {
		item = featuredItem{
			ID:        res.Comment.ID,
			Type:      string(services.FeaturedComment),
			Content:   res.Comment.Content,
			Author:    res.AuthorName,
			AuthorID:  res.Comment.AuthorID,
			LikeCount: res.LikeCount,
			CreatedAt: res.Comment.CreatedAt,
		}
	}
	pk := pkResult{Winner: string(res.Type), PostLikes: res.Post.LikeCount, Reason: res.Reason}
	if res.HasComments {
		top := res.TopCommentLikes
		pk.TopCommentLikes = &top
	}
	c.JSON(http.StatusOK, gin.H{"best_comment": item, "pk_result": pk})
}
