package mcp

import (
	"context"
	"fmt"

	"tabpilot-mcp-server/internal/browser"
)

type UploadFileTool struct {
	uploader FileUploader
}

func (t *UploadFileTool) Name() string { return "upload-file" }
func (t *UploadFileTool) Description() string {
	return `Set a file on an <input type="file"> element in a tab.

The file can come from three sources (exactly one must be given):
- local_path: a file already on the machine running the browser
- remote_url: fetched and staged through the file bridge
- inline_data: base64 content staged through the file bridge

The tool acquires an exclusive debugger session on the tab, resolves the
selector, verifies it is a file input, sets the file, fires a change event,
and releases the session. If another debugger holds the tab the call fails
without touching the page.

Returns: {success, files, selector, count, diagnostics}.`
}
func (t *UploadFileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tab_id": map[string]interface{}{
				"type":        "integer",
				"description": "Numeric tab id from list-tabs",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector resolving to the file input",
			},
			"local_path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute path of a local file to upload",
			},
			"remote_url": map[string]interface{}{
				"type":        "string",
				"description": "URL to fetch and stage before uploading",
			},
			"inline_data": map[string]interface{}{
				"type":        "string",
				"description": "Base64 file content to stage before uploading",
			},
			"file_name_hint": map[string]interface{}{
				"type":        "string",
				"description": "Preferred file name for staged content",
			},
		},
		"required": []string{"tab_id", "selector"},
	}
}
func (t *UploadFileTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.uploader == nil {
		return nil, fmt.Errorf("upload workflow unavailable")
	}
	if !hasArg(args, "tab_id") {
		return nil, fmt.Errorf("tab_id is required")
	}

	tabID := getIntArg(args, "tab_id", 0)
	selector := getStringArg(args, "selector")
	source := browser.FileSource{
		LocalPath:  getStringArg(args, "local_path"),
		RemoteURL:  getStringArg(args, "remote_url"),
		InlineData: getStringArg(args, "inline_data"),
	}
	opts := browser.UploadOptions{
		FileNameHint: getStringArg(args, "file_name_hint"),
	}

	result, err := t.uploader.UploadFile(ctx, tabID, selector, source, opts)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success":     true,
		"files":       result.Files,
		"selector":    result.Selector,
		"count":       result.Count,
		"diagnostics": result.Diagnostics,
	}, nil
}
