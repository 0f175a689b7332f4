package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"minisocial/internal/models"
	"minisocial/internal/testutil"
	"minisocial/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = models.Identity{UserID: 1, Username: "alice"}
	bob   = models.Identity{UserID: 2, Username: "bob"}
)

func newTestService(t *testing.T) (*PostService, *testutil.PostRepoStub, *testutil.StubBackend) {
	t.Helper()
	repo := testutil.NewPostRepoStub()
	backend := &testutil.StubBackend{}
	svc := NewPostService(repo, upload.New(backend, "mini-social", time.Second))
	return svc, repo, backend
}

func seedPost(t *testing.T, repo *testutil.PostRepoStub, author models.Identity, content string) *models.Post {
	t.Helper()
	p := &models.Post{AuthorID: author.UserID, AuthorName: author.Username, Content: content}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestCreatePost(t *testing.T) {
	ctx := context.Background()

	t.Run("text only", func(t *testing.T) {
		svc, _, backend := newTestService(t)
		post, err := svc.CreatePost(ctx, CreatePostInput{Author: alice, Content: "hello"})
		require.NoError(t, err)
		assert.NotEmpty(t, post.ID)
		assert.Equal(t, "hello", post.Content)
		assert.Equal(t, "alice", post.AuthorName)
		assert.Equal(t, "", post.Image)
		assert.Empty(t, post.Likes)
		assert.Equal(t, 0, backend.Count())
	})

	t.Run("image is uploaded into the default folder", func(t *testing.T) {
		svc, _, backend := newTestService(t)
		data := testutil.TinyPNG(t, 4, 4)
		post, err := svc.CreatePost(ctx, CreatePostInput{
			Author: alice,
			Image:  &Image{Data: data, Filename: "a.png", ContentType: "image/png"},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/mini-social/1.webp", post.Image)

		stored, ok := backend.Blob(post.Image)
		require.True(t, ok)
		assert.Equal(t, data, stored)
	})

	t.Run("empty post is allowed", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		post, err := svc.CreatePost(ctx, CreatePostInput{Author: bob})
		require.NoError(t, err)
		assert.Equal(t, "", post.Content)
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("upload failure stores nothing", func(t *testing.T) {
		svc, repo, backend := newTestService(t)
		backend.Err = errors.New("quota exceeded")

		_, err := svc.CreatePost(ctx, CreatePostInput{Author: alice, Content: "x", Image: &Image{Data: []byte("img")}})
		var upErr *upload.UploadError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, "stub", upErr.Backend)
		assert.Equal(t, 0, repo.Len())
	})

	t.Run("image without uploader", func(t *testing.T) {
		svc := NewPostService(testutil.NewPostRepoStub(), nil)
		_, err := svc.CreatePost(ctx, CreatePostInput{Author: alice, Image: &Image{Data: []byte("img")}})
		var upErr *upload.UploadError
		require.ErrorAs(t, err, &upErr)
		assert.ErrorIs(t, err, ErrNoUploader)
	})

	t.Run("store failure", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.Err = errors.New("db down")
		_, err := svc.CreatePost(ctx, CreatePostInput{Author: alice, Content: "x"})
		assert.EqualError(t, err, "db down")
	})
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name              string
		page, limit       int
		wantPage, wantLim int
	}{
		{"defaults", 0, 0, 1, 10},
		{"negative", -3, -1, 1, 10},
		{"passthrough", 3, 20, 3, 20},
		{"ceiling", 1, 1000, 1, 50},
		{"exact ceiling", 2, 50, 2, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, l := NormalizePage(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, p)
			assert.Equal(t, tt.wantLim, l)
		})
	}
}

func TestListPosts(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		p := &models.Post{AuthorID: 1, Content: fmt.Sprintf("post %d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.Create(ctx, p))
	}

	first, err := svc.ListPosts(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, "post 24", first[0].Content)

	third, err := svc.ListPosts(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, third, 5)
	assert.Equal(t, "post 4", third[0].Content)

	capped, err := svc.ListPosts(ctx, 1, 1000)
	require.NoError(t, err)
	assert.Len(t, capped, 25)

	beyond, err := svc.ListPosts(ctx, 9, 10)
	require.NoError(t, err)
	assert.NotNil(t, beyond)
	assert.Empty(t, beyond)

	for _, page := range []int{922337203685477590, math.MaxInt} {
		far, err := svc.ListPosts(ctx, page, MaxLimit)
		require.NoError(t, err)
		assert.NotNil(t, far)
		assert.Empty(t, far, "page %d", page)
	}
}

func TestToggleLike(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)
	post := seedPost(t, repo, alice, "like me")

	liked, err := svc.ToggleLike(ctx, bob, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.UserID}, liked.Likes)
	assert.True(t, liked.HasLike(bob.UserID))
	assert.False(t, liked.HasLike(alice.UserID))

	unliked, err := svc.ToggleLike(ctx, bob, post.ID)
	require.NoError(t, err)
	assert.Empty(t, unliked.Likes)
	assert.False(t, unliked.HasLike(bob.UserID))

	_, err = svc.ToggleLike(ctx, bob, "missing")
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func TestAddComment(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)
	post := seedPost(t, repo, alice, "discuss")

	t.Run("appends with the caller's name", func(t *testing.T) {
		updated, err := svc.AddComment(ctx, bob, post.ID, "nice")
		require.NoError(t, err)
		require.Len(t, updated.Comments, 1)
		assert.Equal(t, "bob", updated.Comments[0].Username)
		assert.Equal(t, "nice", updated.Comments[0].Text)
		assert.False(t, updated.Comments[0].CreatedAt.IsZero())
	})

	t.Run("empty text is rejected without touching the post", func(t *testing.T) {
		_, err := svc.AddComment(ctx, bob, post.ID, "")
		require.Error(t, err)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
		assert.EqualError(t, err, "Empty comment")

		stored, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Comments, 1)
	})

	t.Run("empty text wins over a missing post", func(t *testing.T) {
		_, err := svc.AddComment(ctx, bob, "missing", "")
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := svc.AddComment(ctx, bob, "missing", "hi")
		assert.ErrorIs(t, err, models.ErrPostNotFound)
	})
}

func TestUpdatePost(t *testing.T) {
	ctx := context.Background()

	t.Run("author replaces content", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		post := seedPost(t, repo, alice, "draft")

		updated, err := svc.UpdatePost(ctx, UpdatePostInput{Caller: alice, PostID: post.ID, Content: "final"})
		require.NoError(t, err)
		assert.Equal(t, "final", updated.Content)
	})

	t.Run("empty content keeps the old text", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		post := seedPost(t, repo, alice, "keep me")

		updated, err := svc.UpdatePost(ctx, UpdatePostInput{Caller: alice, PostID: post.ID})
		require.NoError(t, err)
		assert.Equal(t, "keep me", updated.Content)
	})

	t.Run("new image replaces the url", func(t *testing.T) {
		svc, repo, backend := newTestService(t)
		post := seedPost(t, repo, alice, "pic")
		_, err := repo.Update(ctx, post.ID, models.PostUpdate{Image: strPtr("https://cdn.test/old.webp")})
		require.NoError(t, err)

		updated, err := svc.UpdatePost(ctx, UpdatePostInput{Caller: alice, PostID: post.ID, Image: &Image{Data: []byte("new")}})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/mini-social/1.webp", updated.Image)
		assert.Equal(t, "pic", updated.Content)
		assert.Equal(t, 1, backend.Count())
	})

	t.Run("non-author is forbidden", func(t *testing.T) {
		svc, repo, backend := newTestService(t)
		post := seedPost(t, repo, alice, "mine")

		_, err := svc.UpdatePost(ctx, UpdatePostInput{Caller: bob, PostID: post.ID, Content: "hijack", Image: &Image{Data: []byte("x")}})
		require.Error(t, err)
		assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
		assert.EqualError(t, err, "Unauthorized")
		assert.Equal(t, 0, backend.Count())

		stored, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "mine", stored.Content)
	})

	t.Run("missing post", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.UpdatePost(ctx, UpdatePostInput{Caller: alice, PostID: "missing", Content: "x"})
		assert.ErrorIs(t, err, models.ErrPostNotFound)
	})

	t.Run("upload failure leaves the post unchanged", func(t *testing.T) {
		svc, repo, backend := newTestService(t)
		post := seedPost(t, repo, alice, "before")
		backend.Err = errors.New("backend offline")

		_, err := svc.UpdatePost(ctx, UpdatePostInput{Caller: alice, PostID: post.ID, Content: "after", Image: &Image{Data: []byte("x")}})
		var upErr *upload.UploadError
		require.ErrorAs(t, err, &upErr)

		stored, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.Equal(t, "before", stored.Content)
	})
}

func TestDeletePost(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)
	post := seedPost(t, repo, alice, "bye")

	err := svc.DeletePost(ctx, bob, post.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))
	assert.Equal(t, 1, repo.Len())

	require.NoError(t, svc.DeletePost(ctx, alice, post.ID))

	_, err = svc.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, models.ErrPostNotFound)

	err = svc.DeletePost(ctx, alice, post.ID)
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)
	post := seedPost(t, repo, alice, "mine")

	got, err := svc.Authorize(ctx, alice, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)

	_, err = svc.Authorize(ctx, bob, post.ID)
	assert.Equal(t, models.CodeForbidden, models.ErrorCode(err))

	_, err = svc.Authorize(ctx, alice, "missing")
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func strPtr(s string) *string { return &s }
