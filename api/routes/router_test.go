package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tapspot/api/handlers"
	"tapspot/db/dbtest"
	"tapspot/services"
)

type testApp struct {
	router   *gin.Engine
	registry *services.Registry
}

func newTestApp(t *testing.T, limiter *services.SendLimiter) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orm := dbtest.New(t)
	log := zap.NewNop()
	registry := services.NewRegistry(log)
	presence := services.NewLocalPresence(registry)
	tokens := services.NewTokenService("test-secret", time.Hour, nil, log)

	users := services.NewUserService(orm)
	posts := services.NewPostService(orm)
	comments := services.NewCommentService(orm)
	likes := services.NewLikeService(orm)
	ranking := services.NewRankingService(orm)
	dialogs := services.NewDialogService(orm, services.NewLocalNotifier(registry), presence, log, 1000)

	if limiter == nil {
		limiter = services.NewSendLimiter(1000, 1000)
	}
	t.Cleanup(limiter.Stop)
	t.Cleanup(registry.CloseAll)

	router := NewRouter(log, Handlers{
		Auth:     handlers.NewAuthHandlers(users, tokens),
		Users:    handlers.NewUserHandlers(users, posts),
		Posts:    handlers.NewPostHandlers(posts, comments, likes, ranking),
		Comments: handlers.NewCommentHandlers(comments, likes),
		Dialogs:  handlers.NewDialogHandlers(dialogs),
		WS:       handlers.NewWSHandler(registry, dialogs, presence, limiter, log, 16),
		Health:   handlers.NewHealthHandler(orm),
	}, tokens, limiter, nil)
	return &testApp{router: router, registry: registry}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// call выполняет запрос, проверяет код и разбирает JSON-ответ в out
func (a *testApp) call(t *testing.T, method, path, token string, body interface{}, status int, out interface{}) {
	t.Helper()
	rec := a.do(t, method, path, token, body)
	require.Equal(t, status, rec.Code, "%s %s: %s", method, path, rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

type session struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func (a *testApp) register(t *testing.T, username string) session {
	t.Helper()
	var s session
	a.call(t, http.MethodPost, "/api/register", "",
		map[string]string{"username": username, "password": "secret"}, http.StatusCreated, &s)
	require.NotEmpty(t, s.Token)
	return s
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func urlf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// newStrictLimiter пропускает одно сообщение и почти не пополняется
func newStrictLimiter() *services.SendLimiter {
	return services.NewSendLimiter(0.001, 1)
}
