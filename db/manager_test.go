package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tapspot/db"
	"tapspot/db/dbtest"
	"tapspot/models"
)

// на одном подключении подряд идут запросы к разным таблицам с разными условиями
func TestHandlesAreReusable(t *testing.T) {
	orm := dbtest.New(t)
	ctx := context.Background()

	alice := models.User{Username: "alice", PasswordHash: "x", Gender: models.GenderSecret}
	bob := models.User{Username: "bob", PasswordHash: "x", Gender: models.GenderSecret}
	write := db.Write(ctx, orm)
	require.NoError(t, write.Create(&alice).Error)
	require.NoError(t, write.Create(&bob).Error)
	require.NoError(t, write.Create(&models.Post{
		AuthorID: alice.ID, Title: "Tea", Content: "oolong", Type: models.PostTypeFood,
	}).Error)

	handles := map[string]func() *gorm.DB{
		"read":  func() *gorm.DB { return db.Read(ctx, orm) },
		"write": func() *gorm.DB { return db.Write(ctx, orm) },
	}
	for name, open := range handles {
		t.Run(name, func(t *testing.T) {
			conn := open()

			var first, second models.User
			require.NoError(t, conn.First(&first, alice.ID).Error)
			require.NoError(t, conn.First(&second, bob.ID).Error)
			assert.Equal(t, "alice", first.Username)
			assert.Equal(t, "bob", second.Username)

			var posts int64
			require.NoError(t, conn.Model(&models.Post{}).Where("author_id = ?", alice.ID).Count(&posts).Error)
			assert.Equal(t, int64(1), posts)

			var none int64
			require.NoError(t, conn.Model(&models.Post{}).Where("author_id = ?", bob.ID).Count(&none).Error)
			assert.Zero(t, none)
		})
	}
}
