package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tapspot/apperr"
	"tapspot/models"
	"tapspot/services"
)

type CommentHandlers struct {
	comments *services.CommentService
	likes    *services.LikeService
}

func NewCommentHandlers(comments *services.CommentService, likes *services.LikeService) *CommentHandlers {
	return &CommentHandlers{comments: comments, likes: likes}
}

type CreateCommentRequest struct {
	Content   string `json:"content" binding:"required"`
	ReplyToID *int64 `json:"reply_to_id"`
}

func (h *CommentHandlers) ListComments(c *gin.Context) {
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	comments, err := h.comments.List(c.Request.Context(), postID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *CommentHandlers) CreateComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("content is required"))
		return
	}
	comment, err := h.comments.Create(c.Request.Context(), postID, userID, req.Content, req.ReplyToID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *CommentHandlers) DeleteComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.comments.Delete(c.Request.Context(), id, userID); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *CommentHandlers) LikeComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.likes.Toggle(c.Request.Context(), userID, models.TargetComment, id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LikeCounts - число лайков для comment_ids, доступно без входа
func (h *CommentHandlers) LikeCounts(c *gin.Context) {
	ids, err := parseIDList(c.Query("comment_ids"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	counts, err := h.comments.LikeCounts(c.Request.Context(), ids)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": idMap(counts)})
}

func (h *CommentHandlers) CheckLikes(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ids, err := parseIDList(c.Query("comment_ids"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	liked, err := h.likes.Check(c.Request.Context(), userID, models.TargetComment, ids)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": idMap(liked)})
}
