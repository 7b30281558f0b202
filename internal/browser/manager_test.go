package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeAttacher counts protocol calls and can fail each operation on demand.
type fakeAttacher struct {
	mu        sync.Mutex
	attaches  int
	detaches  int
	attachErr error
	detachErr error
}

func (f *fakeAttacher) Attach(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attaches++
	return nil
}

func (f *fakeAttacher) Detach(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
	return f.detachErr
}

func (f *fakeAttacher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attaches, f.detaches
}

func newTestManager(fa *fakeAttacher) *Manager {
	return NewManager(fa, NewRegistry(), nil)
}

func TestAcquireReleaseBalancesProtocolCalls(t *testing.T) {
	fa := &fakeAttacher{}
	m := newTestManager(fa)
	ctx := context.Background()

	s, err := m.Acquire(ctx, 7)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if s.TabID != 7 || !s.AttachedByUs {
		t.Errorf("unexpected session: %+v", s)
	}
	if !m.Holds(7) {
		t.Error("manager should hold tab 7 after acquire")
	}

	m.Release(ctx, 7)
	if m.Holds(7) {
		t.Error("manager still holds tab 7 after release")
	}

	attaches, detaches := fa.counts()
	if attaches != 1 || detaches != 1 {
		t.Errorf("expected one attach and one detach, got %d/%d", attaches, detaches)
	}
}

func TestAcquireIsIdempotentPerTab(t *testing.T) {
	fa := &fakeAttacher{}
	m := newTestManager(fa)
	ctx := context.Background()

	first, err := m.Acquire(ctx, 3)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	second, err := m.Acquire(ctx, 3)
	if err != nil {
		t.Fatalf("re-acquire failed: %v", err)
	}
	if first != second {
		t.Error("re-acquire must return the existing session")
	}
	if attaches, _ := fa.counts(); attaches != 1 {
		t.Errorf("re-acquire issued an extra attach: %d", attaches)
	}
}

func TestAcquireConflictIsClassified(t *testing.T) {
	fa := &fakeAttacher{attachErr: ErrAttachmentConflict}
	m := newTestManager(fa)

	_, err := m.Acquire(context.Background(), 9)
	if !errors.Is(err, ErrAttachmentConflict) {
		t.Fatalf("expected ErrAttachmentConflict, got %v", err)
	}
	if m.Holds(9) {
		t.Error("failed acquire must not record a session")
	}
}

func TestAcquireOtherFailuresAreProtocolErrors(t *testing.T) {
	fa := &fakeAttacher{attachErr: errors.New("socket closed")}
	m := newTestManager(fa)

	_, err := m.Acquire(context.Background(), 9)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestReleaseUnheldTabIsNoOp(t *testing.T) {
	fa := &fakeAttacher{}
	m := newTestManager(fa)

	m.Release(context.Background(), 42)
	if _, detaches := fa.counts(); detaches != 0 {
		t.Errorf("release of unheld tab issued a detach: %d", detaches)
	}
}

func TestReleaseClearsStateWhenDetachFails(t *testing.T) {
	fa := &fakeAttacher{detachErr: errors.New("tab is gone")}
	m := newTestManager(fa)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, 5); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	m.Release(ctx, 5)

	if m.Holds(5) {
		t.Error("detach failure must not leave the session recorded")
	}
	// A fresh acquire must work, proving the invariant did not get stuck.
	if _, err := m.Acquire(ctx, 5); err != nil {
		t.Fatalf("re-acquire after failed detach: %v", err)
	}
}

func TestTabRemovalClearsWithoutDetach(t *testing.T) {
	fa := &fakeAttacher{}
	m := newTestManager(fa)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, 11); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	m.HandleTabRemoved(11)

	if m.Holds(11) {
		t.Error("removed tab still has a session")
	}
	if _, detaches := fa.counts(); detaches != 0 {
		t.Errorf("tab removal must not detach a dead tab: %d", detaches)
	}

	// A release racing in after the removal sees nothing to do.
	m.Release(ctx, 11)
	if _, detaches := fa.counts(); detaches != 0 {
		t.Errorf("late release after removal issued a detach: %d", detaches)
	}
}

func TestSessionsListsLiveEntries(t *testing.T) {
	fa := &fakeAttacher{}
	m := newTestManager(fa)
	ctx := context.Background()

	for _, id := range []int{1, 2, 3} {
		if _, err := m.Acquire(ctx, id); err != nil {
			t.Fatalf("acquire %d: %v", id, err)
		}
	}
	m.Release(ctx, 2)

	sessions := m.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(sessions))
	}
	seen := map[int]bool{}
	for _, s := range sessions {
		seen[s.TabID] = true
	}
	if !seen[1] || !seen[3] || seen[2] {
		t.Errorf("unexpected session set: %v", seen)
	}
}
