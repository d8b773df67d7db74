package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapspot/apperr"
	"tapspot/models"
)

func TestPostCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreatePostInput
	}{
		{"empty title", CreatePostInput{Title: " ", Content: "c", Latitude: ptr(1.0), Longitude: ptr(1.0)}},
		{"empty content", CreatePostInput{Title: "t", Latitude: ptr(1.0), Longitude: ptr(1.0)}},
		{"unknown type", CreatePostInput{Title: "t", Content: "c", Type: "bar", Latitude: ptr(1.0), Longitude: ptr(1.0)}},
		{"missing coords", CreatePostInput{Title: "t", Content: "c"}},
		{"latitude out of range", CreatePostInput{Title: "t", Content: "c", Latitude: ptr(91.0), Longitude: ptr(1.0)}},
		{"longitude out of range", CreatePostInput{Title: "t", Content: "c", Latitude: ptr(1.0), Longitude: ptr(-181.0)}},
		{"nan latitude", CreatePostInput{Title: "t", Content: "c", Latitude: ptr(math.NaN()), Longitude: ptr(1.0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.posts.Create(ctx, alice.ID, tc.in)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}

	p, err := env.posts.Create(ctx, alice.ID, CreatePostInput{
		Title: "Coffee", Content: "flat white", Type: "food", LocationName: "Corner",
		Latitude: ptr(-90.0), Longitude: ptr(180.0),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostTypeFood, p.Type)
	assert.Equal(t, "alice", p.AuthorName)

	p, err = env.posts.Create(ctx, alice.ID, CreatePostInput{Title: "Plain", Content: "c", Latitude: ptr(0.0), Longitude: ptr(0.0)})
	require.NoError(t, err)
	assert.Equal(t, models.PostTypePost, p.Type)
}

func TestPostList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	_, err := env.posts.Create(ctx, alice.ID, CreatePostInput{Title: "Noodles", Content: "spicy", Type: "food", Latitude: ptr(22.5), Longitude: ptr(114.0)})
	require.NoError(t, err)
	_, err = env.posts.Create(ctx, bob.ID, CreatePostInput{Title: "Hostel", Content: "cheap beds", Type: "hotel", Latitude: ptr(48.8), Longitude: ptr(2.3)})
	require.NoError(t, err)
	last, err := env.posts.Create(ctx, bob.ID, CreatePostInput{Title: "Park", Content: "quiet", Type: "scenic", Latitude: ptr(22.6), Longitude: ptr(114.1)})
	require.NoError(t, err)

	all, err := env.posts.List(ctx, PostFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, last.ID, all[0].ID, "newest first")

	byType, err := env.posts.List(ctx, PostFilter{Type: "hotel"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "Hostel", byType[0].Title)

	bySearch, err := env.posts.List(ctx, PostFilter{Search: "spicy"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "Noodles", bySearch[0].Title)

	byAuthor, err := env.posts.List(ctx, PostFilter{AuthorID: bob.ID})
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)

	inBox, err := env.posts.List(ctx, PostFilter{Bounds: &Bounds{MinLat: 22, MaxLat: 23, MinLng: 113, MaxLng: 115}})
	require.NoError(t, err)
	assert.Len(t, inBox, 2)

	limited, err := env.posts.List(ctx, PostFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPostDeleteCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	post := env.post(t, alice.ID, "Doomed")
	keep := env.post(t, alice.ID, "Keeper")
	c := env.comment(t, post.ID, bob.ID, "bye")
	kc := env.comment(t, keep.ID, bob.ID, "stays")

	for _, step := range []struct {
		kind models.TargetKind
		id   int64
	}{{models.TargetPost, post.ID}, {models.TargetComment, c.ID}, {models.TargetComment, kc.ID}} {
		_, err := env.likes.Toggle(ctx, bob.ID, step.kind, step.id)
		require.NoError(t, err)
	}

	err := env.posts.Delete(ctx, post.ID, bob.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	require.NoError(t, env.posts.Delete(ctx, post.ID, alice.ID))

	_, err = env.posts.Get(ctx, post.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	var comments, likes int64
	require.NoError(t, env.orm.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&comments).Error)
	require.NoError(t, env.orm.Model(&models.Like{}).Count(&likes).Error)
	assert.Zero(t, comments)
	assert.Equal(t, int64(1), likes, "only the like on the other post's comment survives")

	err = env.posts.Delete(ctx, post.ID, alice.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestPostLikedBy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	p1 := env.post(t, alice.ID, "One")
	p2 := env.post(t, alice.ID, "Two")
	env.comment(t, p1.ID, bob.ID, "hi")

	_, err := env.likes.Toggle(ctx, bob.ID, models.TargetPost, p1.ID)
	require.NoError(t, err)
	_, err = env.likes.Toggle(ctx, bob.ID, models.TargetPost, p2.ID)
	require.NoError(t, err)

	liked, err := env.posts.LikedBy(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, liked, 2)
	assert.Equal(t, p2.ID, liked[0].ID, "latest like first")
	assert.Equal(t, int64(1), liked[1].CommentCount)
}
