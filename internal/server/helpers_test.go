package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"minisocial/internal/models"
	"minisocial/internal/upload"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantError   string
		wantCode    string
		wantDetails string
	}{
		{
			name:       "not found",
			err:        fmt.Errorf("lookup: %w", models.ErrPostNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "Post not found",
			wantCode:   models.CodeNotFound,
		},
		{
			name:       "forbidden",
			err:        models.NewForbiddenError("Unauthorized"),
			wantStatus: http.StatusForbidden,
			wantError:  "Unauthorized",
			wantCode:   models.CodeForbidden,
		},
		{
			name:       "validation",
			err:        models.NewValidationError("Empty comment"),
			wantStatus: http.StatusBadRequest,
			wantError:  "Empty comment",
			wantCode:   models.CodeValidation,
		},
		{
			name:        "upload failure",
			err:         &upload.UploadError{Backend: "cloudinary", Err: errors.New("timeout")},
			wantStatus:  http.StatusInternalServerError,
			wantError:   "generic",
			wantCode:    models.CodeInternal,
			wantDetails: "upload to cloudinary failed: timeout",
		},
		{
			name:        "internal app error",
			err:         models.NewInternalError(errors.New("disk full")),
			wantStatus:  http.StatusInternalServerError,
			wantError:   "generic",
			wantCode:    models.CodeInternal,
			wantDetails: "Internal server error: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondServiceError(c, tt.err, "generic")
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decode[models.ErrorResponse](t, resp)
			assert.Equal(t, tt.wantError, body.Error)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantDetails, body.Details)
		})
	}
}

func TestRespondServiceErrorAfterResponse(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if err := c.JSON(fiber.Map{"ok": true}); err != nil {
			return err
		}
		return respondServiceError(c, errors.New("late failure"), "generic")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestParseFeedPage(t *testing.T) {
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 10},
		{"?page=3&limit=20", 3, 20},
		{"?page=0&limit=0", 1, 10},
		{"?page=2.5&limit=ten", 1, 10},
		{"?limit=51", 1, 50},
		{"?page=%20%204%20", 4, 10},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			app := fiber.New()
			var got FeedPage
			app.Get("/", func(c *fiber.Ctx) error {
				got = parseFeedPage(c)
				return c.SendStatus(fiber.StatusNoContent)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, FeedPage{Page: tt.wantPage, Limit: tt.wantLimit}, got)
		})
	}
}

func TestInvalidJSONBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"content":`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp := env.do(t, req, tokenFor(t, 1, "alice"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", decode[models.ErrorResponse](t, resp).Error)
	assert.Equal(t, 0, env.repo.Len())
}
