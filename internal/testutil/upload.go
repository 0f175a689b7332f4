package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"minisocial/internal/upload"
)

// StubBackend is an upload.Backend that keeps blobs in memory and serves
// them from a fake CDN host. Setting Err makes every Put fail.
type StubBackend struct {
	mu    sync.Mutex
	blobs map[string][]byte
	Err   error
}

func (b *StubBackend) Name() string { return "stub" }

func (b *StubBackend) Put(_ context.Context, r io.Reader, opts upload.Options) (*upload.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	if b.blobs == nil {
		b.blobs = make(map[string][]byte)
	}
	url := fmt.Sprintf("https://cdn.test/%s/%d.webp", opts.Folder, len(b.blobs)+1)
	b.blobs[url] = data
	return &upload.Result{URL: url, Bytes: len(data)}, nil
}

// Blob returns what was uploaded under url.
func (b *StubBackend) Blob(url string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[url]
	return data, ok
}

// Count reports how many uploads succeeded.
func (b *StubBackend) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}
