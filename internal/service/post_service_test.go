package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/model"
)

func TestCreatePostValidatesAuthor(t *testing.T) {
	h := newHarness(t, testTimeouts)
	ctx := context.Background()
	h.seedUser(t, "u1", "alice")

	post, err := h.postSvc.Create(ctx, "u1", CreatePostInput{
		Title:   "hello",
		Content: "world",
		Resources: []ResourceInput{
			{URL: "http://cdn/a.png", Kind: "IMAGE"},
			{URL: "http://cdn/b.pdf", Kind: "FILE"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ContentTypePost, post.ContentType)

	res, err := h.repos.posts.ListResources(ctx, []string{post.ID})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 0, res[0].Position)
	assert.Equal(t, "http://cdn/b.pdf", res[1].URL)

	_, err = h.postSvc.Create(ctx, "ghost", CreatePostInput{Title: "x"})
	assert.ErrorIs(t, err, ErrUnknownAuthor)

	_, err = h.postSvc.Create(ctx, "u1", CreatePostInput{Title: "  "})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestCreatePostWhenUserModuleSilent(t *testing.T) {
	timeouts := testTimeouts
	timeouts.UserValidation = 50 * time.Millisecond
	h := newHarness(t, timeouts, correlation.KindComment)
	h.seedUser(t, "u1", "alice")

	_, err := h.postSvc.Create(context.Background(), "u1", CreatePostInput{Title: "x"})
	assert.ErrorIs(t, err, ErrUnknownAuthor)
}

func TestDeletePostOnlyByAuthor(t *testing.T) {
	h := newHarness(t, testTimeouts)
	ctx := context.Background()
	h.seedUser(t, "u1", "alice")
	h.seedPost(t, "p1", "u1", 1)

	assert.ErrorIs(t, h.postSvc.Delete(ctx, "u2", "p1"), ErrPostNotFound)
	require.NoError(t, h.postSvc.Delete(ctx, "u1", "p1"))
	assert.ErrorIs(t, h.postSvc.Delete(ctx, "u1", "p1"), ErrPostNotFound)
}

func TestToggleLikeKeepsCounterInStep(t *testing.T) {
	h := newHarness(t, testTimeouts)
	ctx := context.Background()
	h.seedUser(t, "u1", "alice")
	h.seedPost(t, "p1", "u1", 1)

	liked, err := h.interactions.ToggleLike(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, liked)
	p, err := h.repos.posts.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, p.LikeCount)

	liked, err = h.interactions.ToggleLike(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, liked)
	p, err = h.repos.posts.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.LikeCount)

	_, err = h.interactions.ToggleLike(ctx, "u1", "nope")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestAddComment(t *testing.T) {
	h := newHarness(t, testTimeouts)
	ctx := context.Background()
	h.seedUser(t, "u1", "alice")
	h.seedPost(t, "p1", "u1", 1)

	c, err := h.comments.Add(ctx, "u1", "p1", "first")
	require.NoError(t, err)
	assert.Equal(t, "p1", c.PostID)

	_, err = h.comments.Add(ctx, "u1", "p1", "")
	assert.ErrorIs(t, err, ErrEmptyContent)
	_, err = h.comments.Add(ctx, "u1", "nope", "hi")
	assert.ErrorIs(t, err, ErrPostNotFound)

	counts, err := h.repos.comments.CountByPosts(ctx, []string{"p1"})
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.EqualValues(t, 1, counts[0].Count)
}

func TestToggleBookmark(t *testing.T) {
	h := newHarness(t, testTimeouts)
	ctx := context.Background()
	h.seedUser(t, "u1", "alice")
	h.seedPost(t, "p1", "u1", 1)

	on, err := h.bookmarks.Toggle(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = h.bookmarks.Toggle(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, on)

	exists, err := h.repos.bookmarks.Exists(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, exists)
}
