package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tabpilot-mcp-server/internal/mangle"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"tabpilot://about",
			"TabPilot About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("High-level server info and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"tabpilot://facts/{predicate}{?limit}",
			"Workflow Facts",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Read a token-efficient slice of workflow facts for one predicate."),
		),
		s.handleFactsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"notes": []string{
			"Resources are read-only context endpoints; use tools for actions/mutations.",
			"Tab ids come from the list-tabs tool and stay stable for the server lifetime.",
			"Workflow facts are browsable per predicate via tabpilot://facts/{predicate}.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func (s *Server) handleFactsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.deps.Engine == nil {
		return nil, fmt.Errorf("mangle engine unavailable")
	}

	predicate := argString(request.Params.Arguments["predicate"])
	if predicate == "" {
		return nil, fmt.Errorf("missing predicate")
	}
	limit := getIntArg(map[string]interface{}{"limit": request.Params.Arguments["limit"]}, "limit", 25)
	if limit <= 0 {
		limit = 25
	}
	if limit > 500 {
		limit = 500
	}

	facts := selectRecentFacts(s.deps.Engine, predicate, limit)

	payload := map[string]interface{}{
		"predicate": predicate,
		"limit":     limit,
		"count":     len(facts),
		"facts":     facts,
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

// selectRecentFacts returns the newest facts for a predicate in
// chronological order.
func selectRecentFacts(engine *mangle.Engine, predicate string, limit int) []mangle.Fact {
	if engine == nil || predicate == "" || limit <= 0 {
		return []mangle.Fact{}
	}

	source := engine.FactsByPredicate(predicate)
	if len(source) > limit {
		source = source[len(source)-limit:]
	}
	return source
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}
