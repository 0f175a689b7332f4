package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"minisocial/internal/models"
	"minisocial/internal/notifications"
	"minisocial/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedResponse struct {
	Posts []models.Post `json:"posts"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func seedPosts(t *testing.T, repo *testutil.PostRepoStub, n int, author uint) []*models.Post {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		p := &models.Post{
			AuthorID:   author,
			AuthorName: "seed",
			Content:    fmt.Sprintf("post %d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Create(context.Background(), p))
		out = append(out, p)
	}
	return out
}

func TestCreatePostHandler(t *testing.T) {
	t.Run("json text post is stored and broadcast", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/posts", map[string]string{"content": "hello feed"}), tokenFor(t, 1, "alice"))
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		post := decode[models.Post](t, resp)
		assert.NotEmpty(t, post.ID)
		assert.Equal(t, "hello feed", post.Content)
		assert.Equal(t, uint(1), post.AuthorID)
		assert.Equal(t, "alice", post.AuthorName)
		assert.Equal(t, "", post.Image)

		events := env.events.Events()
		require.Len(t, events, 1)
		assert.Equal(t, notifications.EventNewPost, events[0].Event)
		broadcast, ok := events[0].Payload.(*models.Post)
		require.True(t, ok)
		assert.Equal(t, post.ID, broadcast.ID)
	})

	t.Run("multipart with image", func(t *testing.T) {
		env := newTestEnv(t)
		img := testutil.TinyPNG(t, 8, 8)
		req := multipartRequest(t, http.MethodPost, "/api/posts", map[string]string{"content": "look"}, img)
		resp := env.do(t, req, tokenFor(t, 2, "bob"))
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		post := decode[models.Post](t, resp)
		assert.Equal(t, "look", post.Content)
		assert.Equal(t, "https://cdn.test/mini-social/1.webp", post.Image)
		stored, ok := env.backend.Blob(post.Image)
		require.True(t, ok)
		assert.Equal(t, img, stored)
	})

	t.Run("empty body creates an empty post", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(t, httptest.NewRequest(http.MethodPost, "/api/posts", nil), tokenFor(t, 1, "alice"))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, 1, env.repo.Len())
	})

	t.Run("requires a token", func(t *testing.T) {
		env := newTestEnv(t)
		resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/posts", map[string]string{"content": "x"}), "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, env.events.Events())
	})

	t.Run("upload failure is a 500 with details", func(t *testing.T) {
		env := newTestEnv(t)
		env.backend.Err = errors.New("quota exceeded")

		req := multipartRequest(t, http.MethodPost, "/api/posts", nil, []byte("png"))
		resp := env.do(t, req, tokenFor(t, 1, "alice"))
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		body := decode[models.ErrorResponse](t, resp)
		assert.Equal(t, "Server error while creating post", body.Error)
		assert.Contains(t, body.Details, "quota exceeded")
		assert.Equal(t, 0, env.repo.Len())
		assert.Empty(t, env.events.Events())
	})

	t.Run("oversized image is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		big := make([]byte, 1024*1024+10)
		resp := env.do(t, multipartRequest(t, http.MethodPost, "/api/posts", nil, big), tokenFor(t, 1, "alice"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, 0, env.backend.Count())
	})

	t.Run("broadcast failure does not fail the request", func(t *testing.T) {
		env := newTestEnv(t)
		env.events.Err = errors.New("hub gone")
		resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/posts", map[string]string{"content": "still ok"}), tokenFor(t, 1, "alice"))
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}

func TestGetPostsHandler(t *testing.T) {
	env := newTestEnv(t)
	seedPosts(t, env.repo, 60, 1)

	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
		wantLen   int
		wantFirst string
	}{
		{"defaults", "", 1, 10, 10, "post 59"},
		{"second page", "?page=2&limit=10", 2, 10, 10, "post 49"},
		{"limit ceiling", "?limit=1000", 1, 50, 50, "post 59"},
		{"non-numeric", "?page=abc&limit=xyz", 1, 10, 10, "post 59"},
		{"negative", "?page=-2&limit=-5", 1, 10, 10, "post 59"},
		{"past the end", "?page=7&limit=10", 7, 10, 0, ""},
		{"offset beyond int range", "?page=922337203685477590&limit=10", 922337203685477590, 10, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts"+tt.query, nil), "")
			require.Equal(t, http.StatusOK, resp.StatusCode)

			body := decode[feedResponse](t, resp)
			assert.Equal(t, tt.wantPage, body.Page)
			assert.Equal(t, tt.wantLimit, body.Limit)
			require.Len(t, body.Posts, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, body.Posts[0].Content)
			}
		})
	}
	assert.Empty(t, env.events.Events())
}

func TestGetPostHandler(t *testing.T) {
	env := newTestEnv(t)
	post := seedPosts(t, env.repo, 1, 1)[0]

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts/"+post.ID, nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, post.ID, decode[models.Post](t, resp).ID)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts/nope", nil), "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[models.ErrorResponse](t, resp)
	assert.Equal(t, "Post not found", body.Error)
	assert.Equal(t, models.CodeNotFound, body.Code)
}

func TestToggleLikeHandler(t *testing.T) {
	env := newTestEnv(t)
	post := seedPosts(t, env.repo, 1, 1)[0]
	bob := tokenFor(t, 2, "bob")

	resp := env.do(t, httptest.NewRequest(http.MethodPost, "/api/posts/"+post.ID+"/like", nil), bob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []uint{2}, decode[models.Post](t, resp).Likes)

	resp = env.do(t, httptest.NewRequest(http.MethodPost, "/api/posts/"+post.ID+"/like", nil), bob)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[models.Post](t, resp).Likes)

	events := env.events.Events()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, notifications.EventPostUpdated, e.Event)
	}

	resp = env.do(t, httptest.NewRequest(http.MethodPost, "/api/posts/missing/like", nil), bob)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Len(t, env.events.Events(), 2)
}

func TestAddCommentHandler(t *testing.T) {
	env := newTestEnv(t)
	post := seedPosts(t, env.repo, 1, 1)[0]
	bob := tokenFor(t, 2, "bob")

	t.Run("empty text", func(t *testing.T) {
		for _, body := range []any{map[string]string{"text": ""}, map[string]string{}} {
			resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/posts/"+post.ID+"/comment", body), bob)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Empty comment", decode[models.ErrorResponse](t, resp).Error)
		}
		stored, err := env.repo.GetByID(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Comments)
		assert.Empty(t, env.events.Events())
	})

	t.Run("appends and broadcasts", func(t *testing.T) {
		resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/posts/"+post.ID+"/comment", map[string]string{"text": "first!"}), bob)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		updated := decode[models.Post](t, resp)
		require.Len(t, updated.Comments, 1)
		assert.Equal(t, "bob", updated.Comments[0].Username)
		assert.Equal(t, uint(2), updated.Comments[0].UserID)
		assert.Equal(t, "first!", updated.Comments[0].Text)

		events := env.events.Events()
		require.Len(t, events, 1)
		assert.Equal(t, notifications.EventPostUpdated, events[0].Event)
	})

	t.Run("missing post", func(t *testing.T) {
		resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/posts/missing/comment", map[string]string{"text": "hi"}), bob)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUpdatePostHandler(t *testing.T) {
	env := newTestEnv(t)
	post := seedPosts(t, env.repo, 1, 1)[0]
	alice := tokenFor(t, 1, "alice")

	t.Run("non-author is forbidden", func(t *testing.T) {
		resp := env.do(t, jsonRequest(t, http.MethodPut, "/api/posts/"+post.ID, map[string]string{"content": "mine now"}), tokenFor(t, 2, "bob"))
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "Unauthorized", decode[models.ErrorResponse](t, resp).Error)
		assert.Empty(t, env.events.Events())
	})

	t.Run("non-author with malformed body is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/posts/"+post.ID, strings.NewReader(`{"content":`))
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
		resp := env.do(t, req, tokenFor(t, 2, "bob"))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("non-author with oversized image is forbidden", func(t *testing.T) {
		big := make([]byte, 1024*1024+10)
		resp := env.do(t, multipartRequest(t, http.MethodPut, "/api/posts/"+post.ID, nil, big), tokenFor(t, 2, "bob"))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, 0, env.backend.Count())
	})

	t.Run("malformed body on a missing post is not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/posts/missing", strings.NewReader(`{"content":`))
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
		resp := env.do(t, req, alice)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("author with malformed body gets 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/posts/"+post.ID, strings.NewReader(`{"content":`))
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
		resp := env.do(t, req, alice)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("author edits text", func(t *testing.T) {
		resp := env.do(t, jsonRequest(t, http.MethodPut, "/api/posts/"+post.ID, map[string]string{"content": "edited"}), alice)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "edited", decode[models.Post](t, resp).Content)
	})

	t.Run("empty content with new image keeps the text", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPut, "/api/posts/"+post.ID, map[string]string{"content": ""}, testutil.TinyPNG(t, 2, 2))
		resp := env.do(t, req, alice)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		updated := decode[models.Post](t, resp)
		assert.Equal(t, "edited", updated.Content)
		assert.Equal(t, "https://cdn.test/mini-social/1.webp", updated.Image)
	})

	t.Run("missing post", func(t *testing.T) {
		resp := env.do(t, jsonRequest(t, http.MethodPut, "/api/posts/missing", map[string]string{"content": "x"}), alice)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	events := env.events.Events()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, notifications.EventPostUpdated, e.Event)
	}
}

func TestDeletePostHandler(t *testing.T) {
	env := newTestEnv(t)
	post := seedPosts(t, env.repo, 1, 1)[0]

	resp := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/posts/"+post.ID, nil), tokenFor(t, 2, "bob"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Unauthorized", decode[models.ErrorResponse](t, resp).Error)
	assert.Equal(t, 1, env.repo.Len())

	resp = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/posts/"+post.ID, nil), tokenFor(t, 1, "alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "Post deleted successfully", body["message"])
	assert.Equal(t, post.ID, body["id"])

	events := env.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notifications.EventPostDeleted, events[0].Event)
	assert.Equal(t, post.ID, events[0].Payload)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts/"+post.ID, nil), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/posts/"+post.ID, nil), tokenFor(t, 1, "alice"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStoreFailureIsGeneric500(t *testing.T) {
	env := newTestEnv(t)
	env.repo.Err = errors.New("connection reset")

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts", nil), "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[models.ErrorResponse](t, resp)
	assert.Equal(t, "Server error", body.Error)
	assert.Equal(t, models.CodeInternal, body.Code)
	assert.Equal(t, "connection reset", body.Details)
}
