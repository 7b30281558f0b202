package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tabpilot-mcp-server/internal/mangle"
)

// Attacher is the debugger attachment primitive supplied by the host
// environment. The rod bridge implements it for live browsers; tests inject
// fakes.
type Attacher interface {
	Attach(ctx context.Context, tabID int) error
	Detach(ctx context.Context, tabID int) error
}

// EngineSink is the minimal interface we need from the diagnostics layer.
type EngineSink interface {
	AddFacts(ctx context.Context, facts []mangle.Fact) error
}

// Manager owns per-tab debugger sessions. It guarantees at most one session
// per tab, exactly one underlying attach/detach per acquire/release pair,
// and unconditional cleanup when a tab disappears.
type Manager struct {
	attacher Attacher
	registry *Registry
	engine   EngineSink
	mu       sync.Mutex
}

// NewManager wires a session manager over the injected registry. The sink
// may be nil when diagnostics are disabled.
func NewManager(attacher Attacher, registry *Registry, sink EngineSink) *Manager {
	return &Manager{
		attacher: attacher,
		registry: registry,
		engine:   sink,
	}
}

// Acquire returns an exclusive session for tabID. Re-acquiring a tab this
// manager already holds is a no-op and issues no protocol call. A tab held
// by another attacher fails with ErrAttachmentConflict before any further
// command is sent.
func (m *Manager) Acquire(ctx context.Context, tabID int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.registry.get(tabID); ok {
		return s, nil
	}

	if err := m.attacher.Attach(ctx, tabID); err != nil {
		if errors.Is(err, ErrAttachmentConflict) {
			return nil, fmt.Errorf("%w: tab %d", ErrAttachmentConflict, tabID)
		}
		return nil, fmt.Errorf("%w: attach tab %d: %v", ErrProtocol, tabID, err)
	}

	s := &Session{TabID: tabID, AttachedByUs: true, AcquiredAt: time.Now()}
	m.registry.put(s)
	m.emit(ctx, "session_attached", tabID)
	return s, nil
}

// Release detaches iff this manager currently owns the session for tabID;
// otherwise it is a no-op. Detach failures are logged, never returned, and
// the local bookkeeping is always cleared so the per-tab invariant cannot
// get stuck.
func (m *Manager) Release(ctx context.Context, tabID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.remove(tabID) {
		return
	}
	if err := m.attacher.Detach(ctx, tabID); err != nil {
		log.Printf("session: detach tab %d failed: %v", tabID, err)
	}
	m.emit(ctx, "session_released", tabID)
}

// HandleTabRemoved clears state for a closed tab regardless of in-flight
// workflows; it is the authoritative last writer for that tab's entry. No
// detach is issued because the attachment died with the tab.
func (m *Manager) HandleTabRemoved(tabID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registry.remove(tabID) {
		log.Printf("session: tab %d removed, session cleared", tabID)
		m.emit(context.Background(), "session_released", tabID)
	}
}

// Holds reports whether this manager owns a session for tabID.
func (m *Manager) Holds(tabID int) bool {
	_, ok := m.registry.get(tabID)
	return ok
}

// Sessions lists the live sessions.
func (m *Manager) Sessions() []Session {
	return m.registry.List()
}

func (m *Manager) emit(ctx context.Context, predicate string, tabID int) {
	if m.engine == nil {
		return
	}
	now := time.Now()
	err := m.engine.AddFacts(ctx, []mangle.Fact{{
		Predicate: predicate,
		Args:      []interface{}{tabID, now.UnixMilli()},
		Timestamp: now,
	}})
	if err != nil {
		log.Printf("session: %s fact error: %v", predicate, err)
	}
}
