package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tapspot/models"
)

func TestCounterReconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	post := env.post(t, alice.ID, "Coffee")
	c := env.comment(t, post.ID, bob.ID, "nice!")
	_, err := env.likes.Toggle(ctx, bob.ID, models.TargetPost, post.ID)
	require.NoError(t, err)
	msg, err := env.dialogs.SendTo(ctx, alice.ID, bob.ID, "hi")
	require.NoError(t, err)

	report, err := env.counters.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total(), "consistent data needs no fixes")

	// ломаем счётчики в обход сервисов
	require.NoError(t, env.orm.Model(&models.Post{}).Where("id = ?", post.ID).
		UpdateColumn("like_count", 42).Error)
	require.NoError(t, env.orm.Model(&models.Comment{}).Where("id = ?", c.ID).
		UpdateColumn("like_count", gorm.Expr("like_count + 3")).Error)
	require.NoError(t, env.orm.Model(&models.Conversation{}).Where("id = ?", msg.ConversationID).
		UpdateColumns(map[string]interface{}{"low_unread": 9, "high_unread": 9}).Error)

	report, err = env.counters.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Posts)
	assert.Equal(t, int64(1), report.Comments)
	assert.Equal(t, int64(2), report.Conversations)

	p, err := env.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.LikeCount)

	bobUnread, err := env.dialogs.Unread(ctx, msg.ConversationID, bob.ID)
	require.NoError(t, err)
	aliceUnread, err := env.dialogs.Unread(ctx, msg.ConversationID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bobUnread)
	assert.Zero(t, aliceUnread)
}
