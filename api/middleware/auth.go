package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"tapspot/apperr"
	"tapspot/services"
)

const (
	ContextUserID = "user_id"
	ContextClaims = "claims"
)

// TokenParser проверяет токен сессии
type TokenParser interface {
	Parse(ctx context.Context, raw string) (*services.Claims, error)
}

// tokenFromRequest берёт токен из Authorization: Bearer или из параметра token
// (браузерный WebSocket не умеет ставить заголовки).
func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return c.Query("token")
}

// AuthRequired пропускает только запросы с действующим токеном
func AuthRequired(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Parse(c.Request.Context(), tokenFromRequest(c))
		if err != nil {
			apperr.Respond(c, apperr.Unauthorized("authentication required"))
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// OptionalAuth выставляет пользователя, если токен есть и валиден
func OptionalAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := tokenFromRequest(c); raw != "" {
			if claims, err := tokens.Parse(c.Request.Context(), raw); err == nil {
				c.Set(ContextUserID, claims.UserID)
				c.Set(ContextClaims, claims)
			}
		}
		c.Next()
	}
}

// UserID пользователь текущего запроса
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func Claims(c *gin.Context) *services.Claims {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*services.Claims)
	return claims
}
