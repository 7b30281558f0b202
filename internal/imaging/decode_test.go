package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
)

// solidPayload renders a solid-color png and returns its base64 segment.
func solidPayload(t *testing.T, w, h int, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// noisePayload renders deterministic rgb noise, which jpeg cannot compress well.
func noisePayload(t *testing.T, w, h int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodePayloadBareBase64(t *testing.T) {
	payload := solidPayload(t, 10, 20, color.RGBA{255, 0, 0, 255})
	img, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 20 {
		t.Errorf("expected 10x20, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestDecodePayloadDataURL(t *testing.T) {
	payload := "data:image/png;base64," + solidPayload(t, 4, 4, color.RGBA{0, 0, 255, 255})
	img, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("expected width 4, got %d", img.Bounds().Dx())
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	if _, err := DecodePayload("!!!not-base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := DecodePayload("data:image/png;base64"); err == nil {
		t.Error("expected error for data URL without payload segment")
	}
	// Valid base64, not an image.
	if _, err := DecodePayload(base64.StdEncoding.EncodeToString([]byte("hello"))); err == nil {
		t.Error("expected error for non-image bytes")
	}
}

func TestDataURL(t *testing.T) {
	got := DataURL(MimeJPEG, "AAAA")
	want := "data:image/jpeg;base64,AAAA"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
