package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"tabpilot-mcp-server/internal/browser"
	"tabpilot-mcp-server/internal/imaging"
)

type CaptureScreenshotTool struct {
	sessions SessionController
	sender   browser.CommandSender
}

func (t *CaptureScreenshotTool) Name() string { return "capture-screenshot" }
func (t *CaptureScreenshotTool) Description() string {
	return `Capture the visible viewport of a tab as an image.

Acquires an exclusive debugger session for the duration of the capture and
releases it afterwards. When max_size_bytes is set the capture is run
through the adaptive compressor so the payload fits the budget where
possible.

Returns: {payload, mime_type, size_bytes} plus compression stats when a
budget was applied.`
}
func (t *CaptureScreenshotTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tab_id": map[string]interface{}{
				"type":        "integer",
				"description": "Numeric tab id from list-tabs",
			},
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Capture encoding: png (default) or jpeg",
			},
			"max_size_bytes": map[string]interface{}{
				"type":        "integer",
				"description": "Optional byte budget; triggers adaptive compression",
			},
		},
		"required": []string{"tab_id"},
	}
}
func (t *CaptureScreenshotTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.sender == nil {
		return nil, fmt.Errorf("browser not connected")
	}
	if !hasArg(args, "tab_id") {
		return nil, fmt.Errorf("tab_id is required")
	}
	tabID := getIntArg(args, "tab_id", 0)

	format := getStringArg(args, "format")
	if format == "" {
		format = "png"
	}

	if _, err := t.sessions.Acquire(ctx, tabID); err != nil {
		return nil, err
	}
	defer t.sessions.Release(ctx, tabID)

	raw, err := t.sender.Send(ctx, tabID, "Page.captureScreenshot", map[string]any{
		"format": format,
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}

	var capture struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &capture); err != nil || capture.Data == "" {
		return nil, fmt.Errorf("capture screenshot: empty result")
	}

	maxSize := getIntArg(args, "max_size_bytes", 0)
	if maxSize <= 0 {
		mime := imaging.MimePNG
		if format == "jpeg" {
			mime = imaging.MimeJPEG
		}
		return map[string]interface{}{
			"payload":    capture.Data,
			"mime_type":  mime,
			"size_bytes": len(capture.Data),
		}, nil
	}

	result, err := imaging.Compress(capture.Data, imaging.CompressOptions{
		MaxSizeBytes: maxSize,
		Format:       parseFormat(format),
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"payload":    result.Payload,
		"mime_type":  result.MimeType,
		"size_bytes": result.SizeBytes,
		"attempts":   result.Attempts,
		"quality":    result.Quality,
		"scale":      result.Scale,
	}, nil
}
