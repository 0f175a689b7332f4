// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
