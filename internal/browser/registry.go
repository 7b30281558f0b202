package browser

import (
	"sync"
	"time"
)

// Session is the exclusive attachment state binding this core to one tab.
type Session struct {
	TabID        int       `json:"tab_id"`
	AttachedByUs bool      `json:"attached_by_us"`
	AcquiredAt   time.Time `json:"acquired_at"`
}

// Registry tracks at most one Session per tab. It starts empty and entries
// move only through the manager's acquire/release/teardown paths; nothing
// else may mutate attachment state.
type Registry struct {
	mu       sync.Mutex
	sessions map[int]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int]*Session)}
}

func (r *Registry) get(tabID int) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tabID]
	return s, ok
}

func (r *Registry) put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.TabID] = s
}

// remove deletes the entry for tabID and reports whether one existed.
func (r *Registry) remove(tabID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[tabID]
	delete(r.sessions, tabID)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns lightweight copies of all live sessions.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}
