package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tapspot/apperr"
	"tapspot/services"
)

type UserHandlers struct {
	users *services.UserService
	posts *services.PostService
}

func NewUserHandlers(users *services.UserService, posts *services.PostService) *UserHandlers {
	return &UserHandlers{users: users, posts: posts}
}

// GetUser - публичный профиль
func (h *UserHandlers) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	profile, err := h.users.Profile(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *UserHandlers) UserPosts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.users.Get(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	posts, err := h.posts.List(c.Request.Context(), services.PostFilter{AuthorID: id, Limit: queryInt(c, "limit", 0)})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *UserHandlers) Search(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), c.Query("q"), queryInt(c, "limit", 20))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
