package mcp

import (
	"context"
	"fmt"
)

type ListTabsTool struct {
	tabs TabLister
}

func (t *ListTabsTool) Name() string { return "list-tabs" }
func (t *ListTabsTool) Description() string {
	return `List open browser tabs with their stable numeric ids.

USE THIS FIRST to discover tab ids before uploading files or capturing
screenshots. Ids stay stable for the lifetime of the server, so a tab keeps
its id across calls.

Returns: Array of {id, target_id, url, title} for each page target.`
}
func (t *ListTabsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListTabsTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if t.tabs == nil {
		return nil, fmt.Errorf("browser not connected")
	}
	tabs, err := t.tabs.Tabs(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tabs": tabs, "count": len(tabs)}, nil
}

type ListSessionsTool struct {
	sessions SessionController
}

func (t *ListSessionsTool) Name() string { return "list-sessions" }
func (t *ListSessionsTool) Description() string {
	return `List tabs this server currently holds a debugger session on.

Each entry shows when the session was acquired. A tab held here cannot be
acquired by another debugger until it is released.

Returns: Array of {tab_id, attached_by_us, acquired_at}.`
}
func (t *ListSessionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSessionsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"sessions": t.sessions.Sessions()}, nil
}

type ReleaseTabTool struct {
	sessions SessionController
}

func (t *ReleaseTabTool) Name() string { return "release-tab" }
func (t *ReleaseTabTool) Description() string {
	return `Release the debugger session held on a tab.

Workflows release their sessions automatically; use this only to recover a
tab that another debugger (e.g. DevTools) needs. Releasing a tab that is not
held is a no-op.

Returns: {released: true, tab_id}.`
}
func (t *ReleaseTabTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tab_id": map[string]interface{}{
				"type":        "integer",
				"description": "Numeric tab id from list-tabs",
			},
		},
		"required": []string{"tab_id"},
	}
}
func (t *ReleaseTabTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if !hasArg(args, "tab_id") {
		return nil, fmt.Errorf("tab_id is required")
	}
	tabID := getIntArg(args, "tab_id", 0)
	t.sessions.Release(ctx, tabID)
	return map[string]interface{}{"released": true, "tab_id": tabID}, nil
}
