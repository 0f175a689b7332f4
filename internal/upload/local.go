package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	MaxImageSide = 2048
	WebPQuality  = 75
)

// LocalBackend re-encodes images to WebP on local disk. Files are named by
// content hash, so re-uploading the same image is idempotent.
type LocalBackend struct {
	dir     string
	baseURL string
}

// NewLocalBackend stores files under dir and builds URLs as baseURL/media/<folder>/<file>.
func NewLocalBackend(dir, baseURL string) *LocalBackend {
	return &LocalBackend{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (b *LocalBackend) Name() string { return "local" }

// Dir is the root directory the server exposes under /media.
func (b *LocalBackend) Dir() string { return b.dir }

func (b *LocalBackend) Put(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	folder, err := cleanFolder(opts.Folder)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid image file: %w", err)
	}

	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, resizeToFit(decoded, MaxImageSide), &webp.Options{Quality: WebPQuality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(buf.Bytes())
	name := hex.EncodeToString(sum[:]) + ".webp"
	rel := path.Join(folder, name)

	if err := writeFile(filepath.Join(b.dir, filepath.FromSlash(rel)), buf.Bytes()); err != nil {
		return nil, err
	}

	return &Result{
		URL:      b.baseURL + "/media/" + rel,
		PublicID: strings.TrimSuffix(rel, ".webp"),
		Bytes:    buf.Len(),
	}, nil
}

func cleanFolder(folder string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(folder))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", errors.New("upload folder is required")
	}
	if strings.Contains(folder, "..") {
		return "", fmt.Errorf("invalid upload folder %q", folder)
	}
	return cleaned, nil
}

func resizeToFit(src image.Image, maxSide int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}

	scale := float64(maxSide) / float64(w)
	if s := float64(maxSide) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func writeFile(p string, data []byte) error {
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	// Each writer gets its own temp file; the last rename wins with identical bytes.
	f, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o640); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
