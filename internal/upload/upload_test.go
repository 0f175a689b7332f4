package upload

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	put   func(ctx context.Context, r io.Reader, opts Options) (*Result, error)
	calls atomic.Int32
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Put(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	f.calls.Add(1)
	return f.put(ctx, r, opts)
}

func TestUpload_StreamsBufferToBackend(t *testing.T) {
	var got []byte
	var gotFolder string
	backend := &fakeBackend{put: func(_ context.Context, r io.Reader, opts Options) (*Result, error) {
		var err error
		got, err = io.ReadAll(r)
		gotFolder = opts.Folder
		return &Result{URL: "https://cdn.example/" + opts.Folder + "/a.webp"}, err
	}}

	u := New(backend, "mini-social", time.Second)
	res, err := u.Upload(context.Background(), []byte("image-bytes"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/mini-social/a.webp", res.URL)
	assert.Equal(t, []byte("image-bytes"), got)
	assert.Equal(t, "mini-social", gotFolder)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestUpload_FolderOverride(t *testing.T) {
	backend := &fakeBackend{put: func(_ context.Context, _ io.Reader, opts Options) (*Result, error) {
		return &Result{URL: opts.Folder}, nil
	}}
	res, err := New(backend, "mini-social", 0).Upload(context.Background(), []byte("x"), Options{Folder: "avatars"})
	require.NoError(t, err)
	assert.Equal(t, "avatars", res.URL)
}

func TestUpload_BackendErrorIsUploadError(t *testing.T) {
	backend := &fakeBackend{put: func(context.Context, io.Reader, Options) (*Result, error) {
		return nil, errors.New("invalid api key")
	}}

	_, err := New(backend, "f", time.Second).Upload(context.Background(), []byte("x"), Options{})
	require.Error(t, err)

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "fake", upErr.Backend)
	assert.EqualError(t, upErr.Err, "invalid api key")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestUpload_EmptyBufferNeverReachesBackend(t *testing.T) {
	backend := &fakeBackend{put: func(context.Context, io.Reader, Options) (*Result, error) {
		return &Result{URL: "nope"}, nil
	}}

	_, err := New(backend, "f", time.Second).Upload(context.Background(), nil, Options{})
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Zero(t, backend.calls.Load())
}

func TestUpload_TimeoutSettlesOnceAndDropsLateResult(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	backend := &fakeBackend{put: func(context.Context, io.Reader, Options) (*Result, error) {
		defer close(finished)
		<-release
		return &Result{URL: "too-late"}, nil
	}}

	res, err := New(backend, "f", 20*time.Millisecond).Upload(context.Background(), []byte("x"), Options{})
	assert.Nil(t, res)
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("backend goroutine did not finish")
	}
}

func TestUpload_CallerCancellation(t *testing.T) {
	backend := &fakeBackend{put: func(ctx context.Context, r io.Reader, _ Options) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := New(backend, "f", 0).Upload(ctx, []byte("x"), Options{})
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpload_BackendThatStopsReadingDoesNotHang(t *testing.T) {
	backend := &fakeBackend{put: func(_ context.Context, r io.Reader, _ Options) (*Result, error) {
		buf := make([]byte, 4)
		_, err := io.ReadFull(r, buf)
		return &Result{URL: string(buf)}, err
	}}

	data := make([]byte, 1<<20)
	copy(data, "head")
	res, err := New(backend, "f", time.Second).Upload(context.Background(), data, Options{})
	require.NoError(t, err)
	assert.Equal(t, "head", res.URL)
}

func TestUpload_BackendPanicBecomesUploadError(t *testing.T) {
	backend := &fakeBackend{put: func(context.Context, io.Reader, Options) (*Result, error) {
		panic("boom")
	}}

	_, err := New(backend, "f", time.Second).Upload(context.Background(), []byte("x"), Options{})
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, err.Error(), "boom")
}

func TestUpload_NilResultIsAnError(t *testing.T) {
	backend := &fakeBackend{put: func(context.Context, io.Reader, Options) (*Result, error) {
		return nil, nil
	}}

	_, err := New(backend, "f", time.Second).Upload(context.Background(), []byte("x"), Options{})
	var upErr *UploadError
	assert.ErrorAs(t, err, &upErr)
}

func TestSettlement_FirstOutcomeWins(t *testing.T) {
	s := newSettlement()
	assert.True(t, s.settle(&Result{URL: "first"}, nil))
	assert.False(t, s.settle(nil, errors.New("second")))
	assert.False(t, s.settle(&Result{URL: "third"}, nil))

	out := <-s.ch
	assert.Equal(t, "first", out.res.URL)
	assert.NoError(t, out.err)
	assert.Empty(t, s.ch)
}
