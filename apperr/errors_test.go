package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", NotFound("post not found"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.True(t, errors.Is(wrapped, NotFound("")))
	assert.False(t, errors.Is(wrapped, Forbidden("")))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))

	cause := errors.New("disk full")
	err := Internal("save", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized:    http.StatusUnauthorized,
		KindNotFound:        http.StatusNotFound,
		KindForbidden:       http.StatusForbidden,
		KindValidation:      http.StatusBadRequest,
		KindInvalidArgument: http.StatusBadRequest,
		KindConflict:        http.StatusConflict,
		KindRateLimited:     http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
		Kind("unknown"):     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), kind)
	}
}

func TestRespondHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	Respond(c, Internal("query users", errors.New("password=hunter2")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":"internal","message":"internal error"}`, rec.Body.String())
	assert.True(t, c.IsAborted())
	require.Len(t, c.Errors, 1)

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	Respond(c, Conflict("username already taken"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"code":"conflict","message":"username already taken"}`, rec.Body.String())
}
