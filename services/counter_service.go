package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"tapspot/db"
)

// CounterService сверяет денормализованные счётчики с исходными строками:
// непрочитанные в диалогах с read_at сообщений, like_count с таблицей лайков.
type CounterService struct {
	db *gorm.DB
}

func NewCounterService(orm *gorm.DB) *CounterService {
	return &CounterService{db: orm}
}

// ReconcileReport сколько строк пришлось исправить
type ReconcileReport struct {
	Conversations int64
	Posts         int64
	Comments      int64
}

func (r ReconcileReport) Total() int64 {
	return r.Conversations + r.Posts + r.Comments
}

// Каждое исправление - один UPDATE с коррелированным подзапросом,
// поэтому параллельные отправки и лайки не перетираются устаревшим значением.
var reconcileStatements = []struct {
	target string
	sql    string
}{
	{"conversations", `UPDATE conversations SET low_unread = (
		SELECT COUNT(*) FROM messages m
		WHERE m.conversation_id = conversations.id AND m.sender_id = conversations.user_high_id AND m.read_at IS NULL)
	WHERE low_unread <> (
		SELECT COUNT(*) FROM messages m
		WHERE m.conversation_id = conversations.id AND m.sender_id = conversations.user_high_id AND m.read_at IS NULL)`},
	{"conversations", `UPDATE conversations SET high_unread = (
		SELECT COUNT(*) FROM messages m
		WHERE m.conversation_id = conversations.id AND m.sender_id = conversations.user_low_id AND m.read_at IS NULL)
	WHERE high_unread <> (
		SELECT COUNT(*) FROM messages m
		WHERE m.conversation_id = conversations.id AND m.sender_id = conversations.user_low_id AND m.read_at IS NULL)`},
	{"posts", `UPDATE posts SET like_count = (
		SELECT COUNT(*) FROM likes l WHERE l.target_kind = 'post' AND l.target_id = posts.id)
	WHERE like_count <> (
		SELECT COUNT(*) FROM likes l WHERE l.target_kind = 'post' AND l.target_id = posts.id)`},
	{"comments", `UPDATE comments SET like_count = (
		SELECT COUNT(*) FROM likes l WHERE l.target_kind = 'comment' AND l.target_id = comments.id)
	WHERE like_count <> (
		SELECT COUNT(*) FROM likes l WHERE l.target_kind = 'comment' AND l.target_id = comments.id)`},
}

// Reconcile исправляет разошедшиеся счётчики
func (s *CounterService) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	write := db.Write(ctx, s.db)
	for _, st := range reconcileStatements {
		res := write.Exec(st.sql)
		if res.Error != nil {
			return report, fmt.Errorf("reconcile %s: %w", st.target, res.Error)
		}
		switch st.target {
		case "conversations":
			report.Conversations += res.RowsAffected
		case "posts":
			report.Posts += res.RowsAffected
		case "comments":
			report.Comments += res.RowsAffected
		}
	}
	return report, nil
}
