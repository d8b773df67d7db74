package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tapspot/api/middleware"
	"tapspot/apperr"
	"tapspot/models"
	"tapspot/services"
)

type AuthHandlers struct {
	users  *services.UserService
	tokens *services.TokenService
}

func NewAuthHandlers(users *services.UserService, tokens *services.TokenService) *AuthHandlers {
	return &AuthHandlers{users: users, tokens: tokens}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (h *AuthHandlers) session(c *gin.Context, status int, user *models.User) {
	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		apperr.Respond(c, apperr.Internal("issue token", err))
		return
	}
	c.JSON(status, SessionResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// Register - регистрация, сразу выдаёт токен
func (h *AuthHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("username and password are required"))
		return
	}
	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.Nickname)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	h.session(c, http.StatusCreated, user)
}

func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("username and password are required"))
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	h.session(c, http.StatusOK, user)
}

// Logout отзывает текущий токен
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.tokens.Revoke(c.Request.Context(), middleware.Claims(c)); err != nil {
		apperr.Respond(c, apperr.Internal("revoke token", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me - профиль владельца токена
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	profile, err := h.users.Profile(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *AuthHandlers) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Validation("invalid request body"))
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
