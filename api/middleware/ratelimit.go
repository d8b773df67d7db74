package middleware

import (
	"github.com/gin-gonic/gin"

	"tapspot/apperr"
)

// Limiter решает, можно ли пользователю выполнить ещё одно действие
type Limiter interface {
	Allow(userID int64) bool
}

// RateLimit ограничивает частоту запросов пользователя. Ставится после AuthRequired.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if ok && !limiter.Allow(userID) {
			apperr.Respond(c, apperr.RateLimited("too many requests, slow down"))
			return
		}
		c.Next()
	}
}
