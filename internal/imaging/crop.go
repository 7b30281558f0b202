package imaging

import (
	"errors"
	"image"

	xdraw "golang.org/x/image/draw"
)

// Rect is a requested crop rectangle in source pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ErrInvalidCropSize means the rectangle has no area left after clamping to
// the source raster.
var ErrInvalidCropSize = errors.New("crop rectangle has no area inside the source image")

// CropAndResize clamps rect to the source raster, crops it, and scales the
// region to fill the destination exactly. A negative origin shrinks the
// corresponding dimension instead of being rejected; overhang past the far
// edge is truncated. The destination is targetWidth x targetHeight scaled by
// devicePixelRatio when both targets are given, otherwise the clamped crop
// size.
func CropAndResize(payload string, rect Rect, devicePixelRatio float64, targetWidth, targetHeight int) (*image.RGBA, error) {
	img, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	x, y, w, h := clampRect(rect, bounds.Dx(), bounds.Dy())
	if w <= 0 || h <= 0 {
		return nil, ErrInvalidCropSize
	}

	if devicePixelRatio <= 0 {
		devicePixelRatio = 1.0
	}
	outW, outH := w, h
	if targetWidth > 0 && targetHeight > 0 {
		outW = int(float64(targetWidth)*devicePixelRatio + 0.5)
		outH = int(float64(targetHeight)*devicePixelRatio + 0.5)
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	srcRect := image.Rect(bounds.Min.X+x, bounds.Min.Y+y, bounds.Min.X+x+w, bounds.Min.Y+y+h)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, srcRect, xdraw.Src, nil)
	return dst, nil
}

// clampRect confines a rectangle to [0,srcW) x [0,srcH). Negative origins eat
// into the width/height rather than shifting the region.
func clampRect(r Rect, srcW, srcH int) (x, y, w, h int) {
	x, y, w, h = r.X, r.Y, r.Width, r.Height
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > srcW {
		w = srcW - x
	}
	if y+h > srcH {
		h = srcH - y
	}
	return x, y, w, h
}
