package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"tabpilot-mcp-server/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// TabInfo is lightweight metadata for one page target.
type TabInfo struct {
	ID       int    `json:"id"`
	TargetID string `json:"target_id"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

// TabBridge maps stable integer tab ids onto live browser targets and
// implements the Attacher and CommandSender capabilities over Rod.
type TabBridge struct {
	cfg        config.BrowserConfig
	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
	attached   map[int]*rod.Page
	byTarget   map[string]int
	ids        map[string]int
	nextID     int
}

// NewTabBridge builds an unconnected bridge; call Start before use.
func NewTabBridge(cfg config.BrowserConfig) *TabBridge {
	return &TabBridge{
		cfg:      cfg,
		attached: make(map[int]*rod.Page),
		byTarget: make(map[string]int),
		ids:      make(map[string]int),
		nextID:   1,
	}
}

// Start connects to an existing Chrome or launches a new one using Rod's
// launcher, mirroring the configured debugger URL or launch command.
func (b *TabBridge) Start(ctx context.Context) error {
	controlURL := b.cfg.DebuggerURL
	if controlURL == "" && len(b.cfg.Launch) > 0 {
		bin := b.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(b.cfg.IsHeadless())
		for _, rawFlag := range b.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}
	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browserClient := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browserClient.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	b.mu.Lock()
	b.browser = browserClient
	b.controlURL = controlURL
	b.mu.Unlock()

	log.Printf("browser connected at %s", controlURL)
	return nil
}

// Stop closes the underlying browser connection and forgets all targets.
func (b *TabBridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attached = make(map[int]*rod.Page)
	b.byTarget = make(map[string]int)
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	b.controlURL = ""
	return err
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (b *TabBridge) ControlURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.controlURL
}

// Tabs lists page targets, assigning each target a stable integer id for
// the lifetime of this bridge.
func (b *TabBridge) Tabs(ctx context.Context) ([]TabInfo, error) {
	b.mu.Lock()
	browserClient := b.browser
	b.mu.Unlock()
	if browserClient == nil {
		return nil, errors.New("browser not connected")
	}

	targets, err := proto.TargetGetTargets{}.Call(browserClient)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]TabInfo, 0, len(targets.TargetInfos))
	for _, t := range targets.TargetInfos {
		if t.Type != "page" {
			continue
		}
		infos = append(infos, TabInfo{
			ID:       b.idForLocked(string(t.TargetID)),
			TargetID: string(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
		})
	}
	return infos, nil
}

// idForLocked returns the stable id for a target, assigning the next one on
// first sight. Caller holds b.mu.
func (b *TabBridge) idForLocked(targetID string) int {
	if id, ok := b.ids[targetID]; ok {
		return id
	}
	id := b.nextID
	b.nextID++
	b.ids[targetID] = id
	return id
}

// Attach binds a debugger session to the tab. Errors that look like a
// competing attacher are classified as ErrAttachmentConflict so the session
// manager can refuse cleanly.
func (b *TabBridge) Attach(ctx context.Context, tabID int) error {
	b.mu.Lock()
	browserClient := b.browser
	targetID := ""
	for tid, id := range b.ids {
		if id == tabID {
			targetID = tid
			break
		}
	}
	b.mu.Unlock()

	if browserClient == nil {
		return errors.New("browser not connected")
	}
	if targetID == "" {
		return fmt.Errorf("unknown tab id %d", tabID)
	}

	page, err := browserClient.Context(ctx).PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		if isConflictError(err) {
			return ErrAttachmentConflict
		}
		return fmt.Errorf("attach to tab %d: %w", tabID, err)
	}

	b.mu.Lock()
	b.attached[tabID] = page
	b.byTarget[targetID] = tabID
	b.mu.Unlock()
	return nil
}

// Detach drops the debugger session for the tab without closing it.
func (b *TabBridge) Detach(ctx context.Context, tabID int) error {
	b.mu.Lock()
	page := b.attached[tabID]
	delete(b.attached, tabID)
	browserClient := b.browser
	b.mu.Unlock()

	if page == nil || browserClient == nil {
		return nil
	}
	return proto.TargetDetachFromTarget{SessionID: page.SessionID}.Call(browserClient)
}

// Send issues a raw protocol command against the attached tab's session.
func (b *TabBridge) Send(ctx context.Context, tabID int, method string, params any) (json.RawMessage, error) {
	b.mu.Lock()
	page := b.attached[tabID]
	b.mu.Unlock()
	if page == nil {
		return nil, fmt.Errorf("tab %d is not attached", tabID)
	}

	res, err := page.Call(ctx, string(page.SessionID), method, params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(res), nil
}

// WatchTabRemovals forwards target-destroyed events as tab ids until ctx
// ends. The callback runs on the event goroutine.
func (b *TabBridge) WatchTabRemovals(ctx context.Context, onRemoved func(tabID int)) {
	b.mu.Lock()
	browserClient := b.browser
	b.mu.Unlock()
	if browserClient == nil {
		return
	}

	go browserClient.Context(ctx).EachEvent(func(ev *proto.TargetTargetDestroyed) {
		b.mu.Lock()
		tabID, ok := b.byTarget[string(ev.TargetID)]
		if ok {
			delete(b.byTarget, string(ev.TargetID))
			delete(b.attached, tabID)
		}
		b.mu.Unlock()
		if ok {
			onRemoved(tabID)
		}
	})()
}

// isConflictError sniffs protocol error text for a competing debugger. The
// wire format carries no structured code for this case.
func isConflictError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "another debugger") ||
		strings.Contains(msg, "already attached") ||
		strings.Contains(msg, "cannot attach")
}
