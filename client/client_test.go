package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tapspot/api/handlers"
	"tapspot/api/routes"
	"tapspot/apperr"
	"tapspot/db/dbtest"
	"tapspot/models"
	"tapspot/services"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orm := dbtest.New(t)
	log := zap.NewNop()
	registry := services.NewRegistry(log)
	presence := services.NewLocalPresence(registry)
	tokens := services.NewTokenService("client-secret", time.Hour, nil, log)
	limiter := services.NewSendLimiter(1000, 1000)

	users := services.NewUserService(orm)
	posts := services.NewPostService(orm)
	comments := services.NewCommentService(orm)
	likes := services.NewLikeService(orm)
	dialogs := services.NewDialogService(orm, services.NewLocalNotifier(registry), presence, log, 1000)

	router := routes.NewRouter(log, routes.Handlers{
		Auth:     handlers.NewAuthHandlers(users, tokens),
		Users:    handlers.NewUserHandlers(users, posts),
		Posts:    handlers.NewPostHandlers(posts, comments, likes, services.NewRankingService(orm)),
		Comments: handlers.NewCommentHandlers(comments, likes),
		Dialogs:  handlers.NewDialogHandlers(dialogs),
		WS:       handlers.NewWSHandler(registry, dialogs, presence, limiter, log, 16),
		Health:   handlers.NewHealthHandler(orm),
	}, tokens, limiter, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		registry.CloseAll()
		srv.Close()
		limiter.Stop()
	})
	return srv
}

func TestClientErrors(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	c := New(srv.URL)
	_, err := c.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Token())

	_, err = New(srv.URL).Register(ctx, "alice", "secret")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, apperr.KindConflict, apiErr.Code)

	_, err = c.SendMessage(ctx, c.UserID(), "me")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apperr.KindInvalidArgument, apiErr.Code)

	_, err = New(srv.URL).UnreadTotal(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestClientMessagingRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice, bob := New(srv.URL), New(srv.URL)
	aliceUser, err := alice.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	bobUser, err := bob.Register(ctx, "bob", "secret")
	require.NoError(t, err)

	var last *models.Message
	for _, text := range []string{"one", "two", "three"} {
		last, err = alice.SendMessage(ctx, bobUser.ID, text)
		require.NoError(t, err)
	}

	unread, err := bob.UnreadTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	msgs, err := bob.Messages(ctx, aliceUser.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)

	msgs, err = bob.Messages(ctx, aliceUser.ID, msgs[1].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, last.ID, msgs[0].ID)

	require.NoError(t, bob.MarkRead(ctx, last.ConversationID))
	unread, err = bob.UnreadTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)

	// после логина клиент пользуется новым токеном
	again := New(srv.URL)
	_, err = again.Login(ctx, "bob", "secret")
	require.NoError(t, err)
	assert.Equal(t, bobUser.ID, again.UserID())
}

func TestFollowDeliversEachMessageOnce(t *testing.T) {
	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice, bob := New(srv.URL), New(srv.URL)
	_, err := alice.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	bobUser, err := bob.Register(ctx, "bob", "secret")
	require.NoError(t, err)

	// отправлено до подписки, придёт опросом
	_, err = bob.SendMessage(ctx, alice.UserID(), "early")
	require.NoError(t, err)

	alice.PollInterval = 50 * time.Millisecond
	alice.ReconnectDelay = 50 * time.Millisecond

	got := make(chan models.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- alice.Follow(ctx, zap.NewNop(), bobUser.ID, func(m models.Message) { got <- m })
	}()

	seen := map[int64]string{}
	collect := func(want int) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for len(seen) < want {
			select {
			case m := <-got:
				_, dup := seen[m.ID]
				require.False(t, dup, "message %d delivered twice", m.ID)
				seen[m.ID] = m.Content
			case <-deadline:
				t.Fatalf("got %d of %d messages", len(seen), want)
			}
		}
	}
	collect(1)

	for _, text := range []string{"a", "b", "c"} {
		_, err := bob.SendMessage(ctx, alice.UserID(), text)
		require.NoError(t, err)
	}
	collect(4)

	// несколько циклов опроса не дают повторов
	time.Sleep(200 * time.Millisecond)
	select {
	case m := <-got:
		t.Fatalf("unexpected redelivery of %d", m.ID)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop")
	}

	contents := make([]string, 0, len(seen))
	for _, c := range seen {
		contents = append(contents, c)
	}
	assert.ElementsMatch(t, []string{"early", "a", "b", "c"}, contents)
}
