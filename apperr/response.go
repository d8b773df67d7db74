package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

var statusByKind = map[Kind]int{
	KindUnauthorized:    http.StatusUnauthorized,
	KindNotFound:        http.StatusNotFound,
	KindForbidden:       http.StatusForbidden,
	KindValidation:      http.StatusBadRequest,
	KindConflict:        http.StatusConflict,
	KindInvalidArgument: http.StatusBadRequest,
	KindRateLimited:     http.StatusTooManyRequests,
	KindInternal:        http.StatusInternalServerError,
}

// HTTPStatus код ответа для вида ошибки
func HTTPStatus(kind Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Body формирует тело ответа. Детали внутренних ошибок наружу не отдаются.
func Body(err error) ErrorResponse {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return ErrorResponse{Code: e.Kind, Message: e.Message}
	}
	return ErrorResponse{Code: KindInternal, Message: "internal error"}
}

// Respond пишет ошибку в ответ и прерывает цепочку обработчиков
func Respond(c *gin.Context, err error) {
	body := Body(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(HTTPStatus(body.Code), body)
}
