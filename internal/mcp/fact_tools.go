package mcp

import (
	"context"
	"fmt"
	"time"

	"tabpilot-mcp-server/internal/mangle"
)

type ReadFactsTool struct {
	engine *mangle.Engine
}

func (t *ReadFactsTool) Name() string { return "read-facts" }
func (t *ReadFactsTool) Description() string {
	return `Read workflow facts recorded by the automation core.

Predicates emitted by the server: session_attached, session_released,
upload_completed, upload_failed, stage_request, stage_resolved,
image_stitched, image_compressed. Filter by predicate and an optional time
window (unix milliseconds) to keep the response small.

Returns: {facts, count}.`
}
func (t *ReadFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate to read; empty returns all buffered facts",
			},
			"since_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Only facts after this unix-ms timestamp",
			},
			"until_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Only facts before this unix-ms timestamp",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum facts to return (default 100, newest kept)",
			},
		},
	}
}
func (t *ReadFactsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if t.engine == nil {
		return nil, fmt.Errorf("fact engine unavailable")
	}

	predicate := getStringArg(args, "predicate")
	sinceMs := getIntArg(args, "since_ms", 0)
	untilMs := getIntArg(args, "until_ms", 0)
	limit := getIntArg(args, "limit", 100)
	if limit <= 0 {
		limit = 100
	}

	var facts []mangle.Fact
	switch {
	case predicate != "" && (sinceMs > 0 || untilMs > 0):
		var after, before time.Time
		if sinceMs > 0 {
			after = time.UnixMilli(int64(sinceMs))
		}
		if untilMs > 0 {
			before = time.UnixMilli(int64(untilMs))
		}
		facts = t.engine.QueryTemporal(predicate, after, before)
	case predicate != "":
		facts = t.engine.FactsByPredicate(predicate)
	default:
		facts = t.engine.Facts()
	}

	if len(facts) > limit {
		facts = facts[len(facts)-limit:]
	}

	return map[string]interface{}{
		"facts": facts,
		"count": len(facts),
	}, nil
}

type QueryFactsTool struct {
	engine *mangle.Engine
}

func (t *QueryFactsTool) Name() string { return "query-facts" }
func (t *QueryFactsTool) Description() string {
	return `Run a Mangle query against the workflow fact store.

Variables bind to matching fact arguments, e.g.
  upload_failed(Tab, Selector, Ts).
returns every failed upload with the tab, selector and timestamp bound.
Requires a schema to be loaded (mangle.schema_path).

Returns: {results, count}.`
}
func (t *QueryFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Mangle query ending with a period",
			},
		},
		"required": []string{"query"},
	}
}
func (t *QueryFactsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.engine == nil {
		return nil, fmt.Errorf("fact engine unavailable")
	}
	query := getStringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	results, err := t.engine.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"results": results,
		"count":   len(results),
	}, nil
}
