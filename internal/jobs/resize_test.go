package jobs

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode resized image: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestResizePreservesAspectRatio(t *testing.T) {
	original := encodeTestPNG(t, 200, 100)
	resized, err := Resize(original, 50)
	if err != nil {
		t.Fatalf("Resize returned error: %v", err)
	}
	width, height := decodeSize(t, resized)
	if width != 50 || height != 25 {
		t.Fatalf("expected 50x25, got %dx%d", width, height)
	}
}

func TestResizeKeepsNarrowImages(t *testing.T) {
	original := encodeTestPNG(t, 40, 30)
	resized, err := Resize(original, 100)
	if err != nil {
		t.Fatalf("Resize returned error: %v", err)
	}
	width, height := decodeSize(t, resized)
	if width != 40 || height != 30 {
		t.Fatalf("expected unchanged 40x30, got %dx%d", width, height)
	}
}

func TestResizeRejectsGarbage(t *testing.T) {
	if _, err := Resize([]byte("not an image"), 100); err == nil {
		t.Fatal("expected error for undecodable payload")
	}
	if _, err := Resize(encodeTestPNG(t, 10, 10), 0); err == nil {
		t.Fatal("expected error for invalid width")
	}
}
