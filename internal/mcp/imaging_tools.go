package mcp

import (
	"context"
	"fmt"
	"log"
	"time"

	"tabpilot-mcp-server/internal/imaging"
	"tabpilot-mcp-server/internal/mangle"
)

// parseFormat maps a user-facing format name onto a MIME type; jpeg is the
// default for anything unrecognized.
func parseFormat(name string) string {
	switch name {
	case "png", imaging.MimePNG:
		return imaging.MimePNG
	default:
		return imaging.MimeJPEG
	}
}

func emitImagingFact(ctx context.Context, engine *mangle.Engine, predicate string, args ...interface{}) {
	if engine == nil {
		return
	}
	now := time.Now()
	err := engine.AddFacts(ctx, []mangle.Fact{{
		Predicate: predicate,
		Args:      append(args, now.UnixMilli()),
		Timestamp: now,
	}})
	if err != nil {
		log.Printf("imaging: %s fact error: %v", predicate, err)
	}
}

type StitchScreenshotsTool struct {
	engine *mangle.Engine
}

func (t *StitchScreenshotsTool) Name() string { return "stitch-screenshots" }
func (t *StitchScreenshotsTool) Description() string {
	return `Compose viewport screenshot segments into one full-page image.

Each part carries a base64 (or data URL) payload and the vertical offset it
was captured at. Parts that fail to decode or start beyond the canvas are
skipped and reported as diagnostics instead of failing the whole operation;
parts overhanging the bottom edge are clipped.

Returns: {payload, mime_type, width, height, diagnostics}.`
}
func (t *StitchScreenshotsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"parts": map[string]interface{}{
				"type":        "array",
				"description": "Screenshot segments ordered by capture position",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"payload":  map[string]interface{}{"type": "string"},
						"y_offset": map[string]interface{}{"type": "integer"},
					},
					"required": []string{"payload"},
				},
			},
			"total_width":  map[string]interface{}{"type": "integer"},
			"total_height": map[string]interface{}{"type": "integer"},
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Output encoding: jpeg (default) or png",
			},
			"quality": map[string]interface{}{
				"type":        "number",
				"description": "JPEG quality 0..1 (default 0.9)",
			},
		},
		"required": []string{"parts", "total_width", "total_height"},
	}
}
func (t *StitchScreenshotsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	rawParts, ok := args["parts"].([]interface{})
	if !ok || len(rawParts) == 0 {
		return nil, fmt.Errorf("parts is required")
	}

	parts := make([]imaging.Part, 0, len(rawParts))
	for i, raw := range rawParts {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("part %d is not an object", i)
		}
		parts = append(parts, imaging.Part{
			Payload: getStringArg(m, "payload"),
			YOffset: getIntArg(m, "y_offset", 0),
		})
	}

	totalWidth := getIntArg(args, "total_width", 0)
	totalHeight := getIntArg(args, "total_height", 0)

	canvas, diags, err := imaging.Stitch(parts, totalWidth, totalHeight)
	if err != nil {
		return nil, err
	}

	format := parseFormat(getStringArg(args, "format"))
	quality := getFloatArg(args, "quality", 0.9)
	payload, mime, err := imaging.Encode(canvas, format, quality)
	if err != nil {
		return nil, err
	}

	emitImagingFact(ctx, t.engine, "image_stitched", len(parts), totalWidth, totalHeight)

	return map[string]interface{}{
		"payload":     payload,
		"mime_type":   mime,
		"width":       totalWidth,
		"height":      totalHeight,
		"diagnostics": diags,
	}, nil
}

type CropImageTool struct{}

func (t *CropImageTool) Name() string { return "crop-image" }
func (t *CropImageTool) Description() string {
	return `Crop a region out of an image, optionally scaling to a target size.

The crop rectangle is given in CSS pixels and clamped to the image bounds;
a rectangle partially outside the image shrinks to the overlap, and one
fully outside fails. When target_width and target_height are set the crop
is resampled to target * device_pixel_ratio.

Returns: {payload, mime_type, width, height}.`
}
func (t *CropImageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"payload": map[string]interface{}{
				"type":        "string",
				"description": "Source image as base64 or data URL",
			},
			"x":      map[string]interface{}{"type": "integer"},
			"y":      map[string]interface{}{"type": "integer"},
			"width":  map[string]interface{}{"type": "integer"},
			"height": map[string]interface{}{"type": "integer"},
			"device_pixel_ratio": map[string]interface{}{
				"type":        "number",
				"description": "Ratio of image pixels to CSS pixels (default 1.0)",
			},
			"target_width":  map[string]interface{}{"type": "integer"},
			"target_height": map[string]interface{}{"type": "integer"},
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Output encoding: jpeg (default) or png",
			},
			"quality": map[string]interface{}{
				"type":        "number",
				"description": "JPEG quality 0..1 (default 0.9)",
			},
		},
		"required": []string{"payload", "width", "height"},
	}
}
func (t *CropImageTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	payload := getStringArg(args, "payload")
	if payload == "" {
		return nil, fmt.Errorf("payload is required")
	}

	rect := imaging.Rect{
		X:      getIntArg(args, "x", 0),
		Y:      getIntArg(args, "y", 0),
		Width:  getIntArg(args, "width", 0),
		Height: getIntArg(args, "height", 0),
	}
	dpr := getFloatArg(args, "device_pixel_ratio", 1.0)
	targetWidth := getIntArg(args, "target_width", 0)
	targetHeight := getIntArg(args, "target_height", 0)

	img, err := imaging.CropAndResize(payload, rect, dpr, targetWidth, targetHeight)
	if err != nil {
		return nil, err
	}

	format := parseFormat(getStringArg(args, "format"))
	quality := getFloatArg(args, "quality", 0.9)
	encoded, mime, err := imaging.Encode(img, format, quality)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return map[string]interface{}{
		"payload":   encoded,
		"mime_type": mime,
		"width":     bounds.Dx(),
		"height":    bounds.Dy(),
	}, nil
}

type CompressImageTool struct {
	engine *mangle.Engine
}

func (t *CompressImageTool) Name() string { return "compress-image" }
func (t *CompressImageTool) Description() string {
	return `Re-encode an image under a byte budget by decaying quality, then scale.

The search lowers JPEG quality by 15% per attempt until it reaches its
floor, then shrinks the image by 15% per attempt, stopping after at most 10
attempts. If the budget still cannot be met the smallest attempt is
returned rather than an error; check size_bytes against your budget.

Returns: {payload, mime_type, size_bytes, attempts, quality, scale}.`
}
func (t *CompressImageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"payload": map[string]interface{}{
				"type":        "string",
				"description": "Source image as base64 or data URL",
			},
			"max_size_bytes": map[string]interface{}{
				"type":        "integer",
				"description": "Byte budget for the base64 payload; 0 means single pass",
			},
			"quality": map[string]interface{}{
				"type":        "number",
				"description": "Starting JPEG quality 0..1 (default 0.8)",
			},
			"scale": map[string]interface{}{
				"type":        "number",
				"description": "Starting scale factor 0..1 (default 1.0)",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Output encoding: jpeg (default) or png",
			},
		},
		"required": []string{"payload"},
	}
}
func (t *CompressImageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	payload := getStringArg(args, "payload")
	if payload == "" {
		return nil, fmt.Errorf("payload is required")
	}

	opts := imaging.CompressOptions{
		MaxSizeBytes: getIntArg(args, "max_size_bytes", 0),
		Quality:      getFloatArg(args, "quality", 0),
		Scale:        getFloatArg(args, "scale", 0),
	}
	if f := getStringArg(args, "format"); f != "" {
		opts.Format = parseFormat(f)
	}

	result, err := imaging.Compress(payload, opts)
	if err != nil {
		return nil, err
	}

	emitImagingFact(ctx, t.engine, "image_compressed", result.SizeBytes, result.Attempts)

	return map[string]interface{}{
		"payload":    result.Payload,
		"mime_type":  result.MimeType,
		"size_bytes": result.SizeBytes,
		"attempts":   result.Attempts,
		"quality":    result.Quality,
		"scale":      result.Scale,
	}, nil
}
