package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
)

// Part is one captured slice of a taller page, drawn at its vertical offset.
type Part struct {
	Payload string `json:"payload"`
	YOffset int    `json:"y_offset"`
}

// Stitch assembles parts onto a totalWidth x totalHeight canvas filled opaque
// white. Parts are drawn in order at (0, yOffset) with their source height
// clipped so no draw exceeds totalHeight; a part whose clipped height is <= 0
// contributes no pixels. A part that fails to decode is skipped and recorded
// as a diagnostic; stitching never aborts the whole canvas.
func Stitch(parts []Part, totalWidth, totalHeight int) (*image.RGBA, []Diagnostic, error) {
	if totalWidth <= 0 || totalHeight <= 0 {
		return nil, nil, fmt.Errorf("invalid canvas size %dx%d", totalWidth, totalHeight)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	var diags []Diagnostic
	for i, part := range parts {
		img, err := DecodePayload(part.Payload)
		if err != nil {
			log.Printf("stitch: part %d skipped: %v", i, err)
			diags = append(diags, Diagnostic{Op: "stitch", Part: i, Error: err.Error()})
			continue
		}

		src := img.Bounds()
		height := src.Dy()
		if part.YOffset+height > totalHeight {
			height = totalHeight - part.YOffset
		}
		if height <= 0 {
			continue
		}

		dst := image.Rect(0, part.YOffset, totalWidth, part.YOffset+height)
		draw.Draw(canvas, dst, img, src.Min, draw.Over)
	}

	return canvas, diags, nil
}
