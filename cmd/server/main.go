package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tabpilot-mcp-server/internal/browser"
	"tabpilot-mcp-server/internal/config"
	"tabpilot-mcp-server/internal/mangle"
	mcpserver "tabpilot-mcp-server/internal/mcp"
	"tabpilot-mcp-server/internal/recorder"
	"tabpilot-mcp-server/internal/stager"
)

// stageObserver fans staging round trips out to the fact engine and the
// flight recorder.
type stageObserver struct {
	engine *mangle.Engine
	traces *recorder.Recorder
}

func (o *stageObserver) StageRequested(id string, req stager.StageRequest) {
	now := time.Now()
	if o.engine != nil {
		_ = o.engine.AddFacts(context.Background(), []mangle.Fact{{
			Predicate: "stage_request",
			Args:      []interface{}{id, now.UnixMilli()},
			Timestamp: now,
		}})
	}
	if o.traces != nil {
		o.traces.Exchange("stage_request", id, map[string]interface{}{
			"remote_url": req.RemoteURL,
			"file_name":  req.FileNameHint,
			"inline":     req.InlineData != "",
		})
	}
}

func (o *stageObserver) StageResolved(id, path string, ok bool, elapsed time.Duration) {
	now := time.Now()
	if o.engine != nil {
		_ = o.engine.AddFacts(context.Background(), []mangle.Fact{{
			Predicate: "stage_resolved",
			Args:      []interface{}{id, ok, now.UnixMilli()},
			Timestamp: now,
		}})
	}
	if o.traces != nil {
		o.traces.Exchange("stage_resolved", id, map[string]interface{}{
			"path":       path,
			"ok":         ok,
			"elapsed_ms": elapsed.Milliseconds(),
		})
	}
}

func main() {
	configPath := flag.String("config", "", "Path to an explicit TabPilot config file")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	noWorkspace := flag.Bool("no-workspace", false, "Skip .tabpilot workspace discovery")
	workspaceDir := flag.String("workspace-dir", "", "Use this directory as the workspace root")
	initWorkspace := flag.Bool("init", false, "Create a .tabpilot workspace in the current directory and exit")
	flag.Parse()

	if *initWorkspace {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to resolve working directory: %v", err)
		}
		if err := config.InitWorkspace(cwd); err != nil {
			log.Fatalf("failed to initialize workspace: %v", err)
		}
		log.Printf("initialized %s workspace in %s", config.WorkspaceDirName, cwd)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, config.WorkspaceOptions{
		Disable:     *noWorkspace,
		ExplicitDir: *workspaceDir,
	})
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}
	if wsDir != "" {
		log.Printf("using workspace at %s", wsDir)
	}

	engine, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		log.Fatalf("failed to initialize mangle engine: %v", err)
	}

	var traces *recorder.Recorder
	if cfg.Recorder.Enable {
		traces, err = recorder.NewRecorder(cfg.Recorder.TraceDir)
		if err != nil {
			log.Printf("flight recorder unavailable: %v", err)
			traces = nil
		} else if err := traces.Start("server"); err != nil {
			log.Printf("flight recorder failed to start: %v", err)
			traces = nil
		} else {
			defer traces.Close()
		}
	}

	tabBridge := browser.NewTabBridge(cfg.Browser)
	sessions := browser.NewManager(tabBridge, browser.NewRegistry(), engine)
	if cfg.Browser.AutoStart {
		if err := tabBridge.Start(ctx); err != nil {
			log.Fatalf("failed to connect to browser: %v", err)
		}
		defer tabBridge.Stop()
		tabBridge.WatchTabRemovals(ctx, sessions.HandleTabRemoved)
	} else {
		log.Printf("browser auto-start disabled; set browser.auto_start to connect at startup")
	}

	var files browser.FileStager
	if cfg.Bridge.Endpoint != "" {
		sideChannel := stager.NewBridge(cfg.Bridge.Endpoint)
		if err := sideChannel.Connect(ctx); err != nil {
			log.Printf("file bridge unavailable, remote/inline uploads disabled: %v", err)
		} else {
			defer sideChannel.Close()
			fileStager := stager.New(sideChannel, cfg.Bridge.StageTimeoutDuration())
			fileStager.SetObserver(&stageObserver{engine: engine, traces: traces})
			go func() {
				if err := sideChannel.Pump(ctx, fileStager.Dispatch); err != nil {
					log.Printf("file bridge pump stopped: %v", err)
				}
			}()
			files = fileStager
		}
	}

	uploader := browser.NewUploader(sessions, tabBridge, files, engine)

	server, err := mcpserver.NewServer(cfg, mcpserver.Deps{
		Sessions: sessions,
		Uploader: uploader,
		Tabs:     tabBridge,
		Sender:   tabBridge,
		Engine:   engine,
	})
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting TabPilot MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting TabPilot MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}
