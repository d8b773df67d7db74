package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tapspot/api/middleware"
	"tapspot/apperr"
)

// currentUser id пользователя из токена; при отсутствии отвечает 401
func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		apperr.Respond(c, apperr.Unauthorized("authentication required"))
		return 0, false
	}
	return userID, true
}

// pathID разбирает числовой параметр пути
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		apperr.Respond(c, apperr.Validation("invalid "+name))
		return 0, false
	}
	return id, true
}

// parseIDList разбирает "1,2,3"; пустые элементы пропускаются
func parseIDList(raw string) ([]int64, error) {
	ids := []int64{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, apperr.Validation("invalid id list")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// idMap превращает map[int64]T в map со строковыми ключами для JSON
func idMap[T any](in map[int64]T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[strconv.FormatInt(k, 10)] = v
	}
	return out
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
