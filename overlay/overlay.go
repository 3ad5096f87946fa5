// Package overlay manages the console's modal surfaces. Exactly one
// overlay of each type exists at a time; opening a type that is already
// showing replaces its content in place instead of stacking a second
// instance. All dismissal paths (close button, backdrop click, escape)
// funnel into the one Close path so teardown cannot be skipped.
package overlay

import (
	"sync"
	"time"
)

// Overlay is one modal surface. Implementations hold their own content
// state; the manager only tracks visibility and lifecycle.
type Overlay interface {
	// Type identifies the overlay; the manager keeps one instance per type.
	Type() string
	// Reset is called when an already-open overlay is reopened with new
	// content, and again after Close once the clear delay elapses.
	Reset()
}

// clearDelay is how long closed overlay content is retained before
// Reset. Clearing immediately would blank the surface while its hide
// transition still plays.
const clearDelay = 300 * time.Millisecond

// Manager owns the set of overlay instances for one page. Pages build
// their own manager; nothing is process-global.
type Manager struct {
	mu      sync.Mutex
	open    map[string]Overlay
	clears  map[string]*time.Timer
	clearIn time.Duration
}

// NewManager builds an empty manager.
func NewManager() *Manager {
	return &Manager{
		open:    map[string]Overlay{},
		clears:  map[string]*time.Timer{},
		clearIn: clearDelay,
	}
}

// Open shows o. If an overlay of the same type is already open its
// instance is kept and reset for the new content; replaced reports
// that case.
func (m *Manager) Open(o Overlay) (Overlay, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	typ := o.Type()
	if t, ok := m.clears[typ]; ok {
		t.Stop()
		delete(m.clears, typ)
	}
	if existing, ok := m.open[typ]; ok {
		existing.Reset()
		return existing, true
	}
	m.open[typ] = o
	return o, false
}

// Close hides the overlay of the given type. Its content is retained
// for a short delay before Reset so a quick reopen does not flash
// empty. Closing an overlay that is not open is a no-op.
func (m *Manager) Close(typ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.open[typ]
	if !ok {
		return
	}
	delete(m.open, typ)
	var t *time.Timer
	t = time.AfterFunc(m.clearIn, func() {
		// The timer may have fired while a reopen held the lock; in
		// that case its entry is gone and the content must survive.
		m.mu.Lock()
		live := m.clears[typ] == t
		if live {
			delete(m.clears, typ)
		}
		m.mu.Unlock()
		if live {
			o.Reset()
		}
	})
	m.clears[typ] = t
}

// Dismiss closes every open overlay, newest state notwithstanding.
// Escape and backdrop clicks land here.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	types := make([]string, 0, len(m.open))
	for typ := range m.open {
		types = append(types, typ)
	}
	m.mu.Unlock()
	for _, typ := range types {
		m.Close(typ)
	}
}

// Get returns the open overlay of the given type.
func (m *Manager) Get(typ string) (Overlay, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.open[typ]
	return o, ok
}

// OpenCount returns how many overlays are showing.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Teardown stops pending clear timers. Call when leaving the page.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for typ, t := range m.clears {
		t.Stop()
		delete(m.clears, typ)
	}
}
