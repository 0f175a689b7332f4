// Package upload stores post images in blob storage. The Uploader streams a
// buffer to a Backend and reports exactly one outcome per call.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"minisocial/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Options control where a blob lands.
type Options struct {
	Folder      string
	Filename    string
	ContentType string
}

// Result describes a stored blob.
type Result struct {
	URL      string
	PublicID string
	Bytes    int
}

// Backend writes one blob read from r.
type Backend interface {
	Name() string
	Put(ctx context.Context, r io.Reader, opts Options) (*Result, error)
}

// ErrEmpty is wrapped by the UploadError returned for a zero-length buffer.
var ErrEmpty = errors.New("empty upload")

// UploadError is returned for every failed upload, whatever the cause.
type UploadError struct {
	Backend string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %s failed: %v", e.Backend, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type outcome struct {
	res *Result
	err error
}

// settlement hands over the first outcome offered to it; later ones are dropped.
type settlement struct {
	once sync.Once
	ch   chan outcome
}

func newSettlement() *settlement {
	return &settlement{ch: make(chan outcome, 1)}
}

func (s *settlement) settle(res *Result, err error) bool {
	won := false
	s.once.Do(func() {
		s.ch <- outcome{res: res, err: err}
		won = true
	})
	return won
}

// Uploader is the adapter handlers call to turn an in-memory file into a URL.
type Uploader struct {
	backend Backend
	folder  string
	timeout time.Duration
}

// New creates an Uploader. folder is used when Options.Folder is empty;
// timeout bounds each upload when positive.
func New(backend Backend, folder string, timeout time.Duration) *Uploader {
	return &Uploader{backend: backend, folder: folder, timeout: timeout}
}

// Backend returns the name of the configured backend.
func (u *Uploader) Backend() string {
	return u.backend.Name()
}

// Upload streams data to the backend. It returns either a Result or an
// *UploadError, never both and never more than once, even if the backend
// finishes after the context gave up.
func (u *Uploader) Upload(ctx context.Context, data []byte, opts Options) (*Result, error) {
	name := u.backend.Name()
	if len(data) == 0 {
		observability.UploadsTotal.WithLabelValues(name, "error").Inc()
		return nil, &UploadError{Backend: name, Err: ErrEmpty}
	}
	if opts.Folder == "" {
		opts.Folder = u.folder
	}

	ctx, span := observability.StartSpan(ctx, "upload", "Upload",
		attribute.String("upload.backend", name),
		attribute.Int("upload.bytes", len(data)),
	)
	start := time.Now()

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	s := newSettlement()
	pr, pw := io.Pipe()

	go func() {
		_, err := io.Copy(pw, bytes.NewReader(data))
		_ = pw.CloseWithError(err)
	}()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				_ = pr.CloseWithError(io.ErrClosedPipe)
				s.settle(nil, fmt.Errorf("backend panic: %v", p))
			}
		}()
		res, err := u.backend.Put(ctx, pr, opts)
		// Unblock the writer if the backend stopped reading early.
		_ = pr.CloseWithError(io.ErrClosedPipe)
		if err == nil && res == nil {
			err = errors.New("backend returned no result")
		}
		s.settle(res, err)
	}()

	var out outcome
	select {
	case out = <-s.ch:
	case <-ctx.Done():
		// No-op when the backend settled first; its outcome is then read below.
		s.settle(nil, ctx.Err())
		_ = pr.CloseWithError(ctx.Err())
		out = <-s.ch
	}

	observability.UploadLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if out.err != nil {
		result := "error"
		if errors.Is(out.err, context.DeadlineExceeded) {
			result = "timeout"
		}
		observability.UploadsTotal.WithLabelValues(name, result).Inc()

		var upErr *UploadError
		if !errors.As(out.err, &upErr) {
			upErr = &UploadError{Backend: name, Err: out.err}
		}
		observability.EndSpan(span, upErr)
		return nil, upErr
	}

	observability.UploadsTotal.WithLabelValues(name, "ok").Inc()
	span.SetAttributes(attribute.String("upload.url", out.res.URL))
	observability.EndSpan(span, nil)
	return out.res, nil
}
