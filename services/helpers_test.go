package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tapspot/db/dbtest"
	"tapspot/models"
)

// recordingNotifier запоминает события вместо доставки
type recordingNotifier struct {
	mu     sync.Mutex
	events map[int64][]Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[int64][]Event)}
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, event Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[userID] = append(n.events[userID], event)
	return true
}

func (n *recordingNotifier) For(userID int64) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events[userID]...)
}

type testEnv struct {
	orm      *gorm.DB
	users    *UserService
	posts    *PostService
	comments *CommentService
	likes    *LikeService
	ranking  *RankingService
	dialogs  *DialogService
	counters *CounterService
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	orm := dbtest.New(t)
	notifier := newRecordingNotifier()
	return &testEnv{
		orm:      orm,
		users:    NewUserService(orm),
		posts:    NewPostService(orm),
		comments: NewCommentService(orm),
		likes:    NewLikeService(orm),
		ranking:  NewRankingService(orm),
		dialogs:  NewDialogService(orm, notifier, nil, zap.NewNop(), 1000),
		counters: NewCounterService(orm),
		notifier: notifier,
	}
}

func (e *testEnv) user(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), username, "secret", "")
	require.NoError(t, err)
	return u
}

func (e *testEnv) post(t *testing.T, authorID int64, title string) *PostView {
	t.Helper()
	lat, lng := 1.0, 1.0
	p, err := e.posts.Create(context.Background(), authorID, CreatePostInput{
		Title:     title,
		Content:   title + " content",
		Latitude:  &lat,
		Longitude: &lng,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) comment(t *testing.T, postID, authorID int64, content string) *CommentView {
	t.Helper()
	c, err := e.comments.Create(context.Background(), postID, authorID, content, nil)
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T {
	return &v
}

// onFirstQuery запускает fn в отдельной горутине, как только к таблице table
// уходит первый запрос, и даёт ей время дойти до базы. Так удаление
// вклинивается в середину чужой операции.
func (e *testEnv) onFirstQuery(t *testing.T, table string, fn func() error) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	var once sync.Once
	err := e.orm.Callback().Query().After("gorm:query").Register("test:interleave_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		once.Do(func() {
			go func() { done <- fn() }()
			time.Sleep(50 * time.Millisecond)
		})
	})
	require.NoError(t, err)
	return done
}
