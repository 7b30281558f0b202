package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"tabpilot-mcp-server/internal/browser"
	"tabpilot-mcp-server/internal/config"
	"tabpilot-mcp-server/internal/mangle"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// SessionController is the slice of the session manager the tools need.
type SessionController interface {
	Acquire(ctx context.Context, tabID int) (*browser.Session, error)
	Release(ctx context.Context, tabID int)
	Sessions() []browser.Session
}

// FileUploader runs the set-file-input workflow against one tab.
type FileUploader interface {
	UploadFile(ctx context.Context, tabID int, selector string, source browser.FileSource, opts browser.UploadOptions) (*browser.UploadResult, error)
}

// TabLister enumerates page targets with their stable ids.
type TabLister interface {
	Tabs(ctx context.Context) ([]browser.TabInfo, error)
}

// Deps bundles the capabilities the tool set runs on. The live wiring uses
// the Rod bridge and the real workflow types; tests inject fakes.
type Deps struct {
	Sessions SessionController
	Uploader FileUploader
	Tabs     TabLister
	Sender   browser.CommandSender
	Engine   *mangle.Engine
}

// Server wires the MCP runtime, tab session manager, and Mangle fact buffer.
type Server struct {
	cfg       config.Config
	deps      Deps
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the TabPilot MCP server and registers all tools.
func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:       cfg,
		deps:      deps,
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start launches the stdio server (Claude/Gemini CLI default).
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by demos/tests).
func (s *Server) ExecuteTool(name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(context.Background(), args)
}

func (s *Server) registerAllTools() {
	// Tab sessions
	s.registerTool(&ListTabsTool{tabs: s.deps.Tabs})
	s.registerTool(&ListSessionsTool{sessions: s.deps.Sessions})
	s.registerTool(&ReleaseTabTool{sessions: s.deps.Sessions})

	// Upload workflow
	s.registerTool(&UploadFileTool{uploader: s.deps.Uploader})

	// Imaging pipeline
	s.registerTool(&StitchScreenshotsTool{engine: s.deps.Engine})
	s.registerTool(&CropImageTool{})
	s.registerTool(&CompressImageTool{engine: s.deps.Engine})
	s.registerTool(&CaptureScreenshotTool{sessions: s.deps.Sessions, sender: s.deps.Sender})

	// Diagnostics facts
	s.registerTool(&ReadFactsTool{engine: s.deps.Engine})
	s.registerTool(&QueryFactsTool{engine: s.deps.Engine})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
