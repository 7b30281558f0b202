package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/webp" // webp decode support for captured frames
)

// MIME types for the raster encodings the pipeline produces.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// Diagnostic records a non-fatal failure inside a best-effort image operation.
// Callers can assert on these instead of scraping log output.
type Diagnostic struct {
	Op    string `json:"op"`
	Part  int    `json:"part"`
	Error string `json:"error"`
}

// DecodePayload turns an encoded image payload into an in-memory raster.
// Payloads may be full data URLs or bare base64; png, jpeg and webp are
// recognized. The returned raster is never mutated by later operations.
func DecodePayload(payload string) (image.Image, error) {
	raw, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func payloadBytes(payload string) ([]byte, error) {
	data := strings.TrimSpace(payload)
	if strings.HasPrefix(data, "data:") {
		_, b64, found := strings.Cut(data, ",")
		if !found {
			return nil, errors.New("data URL missing base64 segment")
		}
		data = b64
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return raw, nil
}

// encodeRaster encodes img in the given format and returns the base64 payload
// segment plus the resulting MIME type. Quality only applies to jpeg.
func encodeRaster(img image.Image, format string, quality float64) (string, string, error) {
	var buf bytes.Buffer
	switch format {
	case MimePNG:
		if err := png.Encode(&buf, img); err != nil {
			return "", "", fmt.Errorf("encode png: %w", err)
		}
		return base64.StdEncoding.EncodeToString(buf.Bytes()), MimePNG, nil
	default:
		q := int(quality*100 + 0.5)
		if q < 1 {
			q = 1
		}
		if q > 100 {
			q = 100
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return "", "", fmt.Errorf("encode jpeg: %w", err)
		}
		return base64.StdEncoding.EncodeToString(buf.Bytes()), MimeJPEG, nil
	}
}

// Encode renders a raster as a base64 payload segment in the given format
// and returns the payload plus its MIME type. Quality only applies to jpeg;
// unknown formats fall back to jpeg.
func Encode(img image.Image, format string, quality float64) (string, string, error) {
	return encodeRaster(img, format, quality)
}

// DataURL renders a base64 payload segment as a data URL.
func DataURL(mimeType, b64 string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, b64)
}
