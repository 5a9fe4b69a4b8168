package router

import (
	"sync"
)

type Subscription interface {
	Unsubscribe()
}

// Mux is an ordered pattern table. Lookups return every matching entry in
// the order the patterns were added.
type Mux struct {
	mu         sync.RWMutex
	entries    []*Entry
	nextID     int
	routeMatch func(pattern, topic string) bool
	validate   func(pattern string) error
}

type Entry struct {
	mux     *Mux
	id      int
	pattern string
	Handler any
}

func (e *Entry) Pattern() string {
	return e.pattern
}

// Unsubscribe removes the entry, keeping the order of the others.
func (e *Entry) Unsubscribe() {
	m := e.mux
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]*Entry, 0, len(m.entries))
	for _, x := range m.entries {
		if x.id != e.id {
			kept = append(kept, x)
		}
	}
	m.entries = kept
}

func NewMux(opts ...Option) *Mux {
	m := &Mux{
		routeMatch: MakeRouteMatcher(),
		validate:   ValidatePattern,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Add appends pattern to the table.
func (m *Mux) Add(pattern string, handler any) (*Entry, error) {
	if m.validate != nil {
		if err := m.validate(pattern); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := &Entry{
		mux:     m,
		id:      m.nextID,
		pattern: pattern,
		Handler: handler,
	}
	m.entries = append(m.entries, e)
	return e, nil
}

// Get returns the entries whose pattern matches topic.
func (m *Mux) Get(topic string) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Entry
	for _, e := range m.entries {
		if m.routeMatch(e.pattern, topic) {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns every entry in insertion order.
func (m *Mux) Entries() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Patterns returns the distinct patterns in insertion order.
func (m *Mux) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool, len(m.entries))
	var out []string
	for _, e := range m.entries {
		if !seen[e.pattern] {
			seen[e.pattern] = true
			out = append(out, e.pattern)
		}
	}
	return out
}

func (m *Mux) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
