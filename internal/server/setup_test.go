package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"minisocial/internal/config"
	"minisocial/internal/testutil"
	"minisocial/internal/upload"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type testEnv struct {
	app     *fiber.App
	srv     *Server
	repo    *testutil.PostRepoStub
	events  *testutil.RecordingBroadcaster
	backend *testutil.StubBackend
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                "test",
		Port:               "0",
		JWTSecret:          testSecret,
		AllowedOrigins:     "*",
		RateLimitPerMinute: 1000,
		UploadFolder:       "mini-social",
		UploadMaxSizeMB:    1,
	}
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	env := &testEnv{
		repo:    testutil.NewPostRepoStub(),
		events:  &testutil.RecordingBroadcaster{},
		backend: &testutil.StubBackend{},
	}
	opts = append([]Option{
		WithBroadcaster(env.events),
		WithUploader(upload.New(env.backend, "mini-social", time.Second)),
	}, opts...)
	env.srv = NewServer(testConfig(), env.repo, opts...)
	env.app = env.srv.App()
	return env
}

func tokenFor(t *testing.T, userID uint, username string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(userID), 10),
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (e *testEnv) do(t *testing.T, req *http.Request, token string) *http.Response {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	return req
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		fw, err := w.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
