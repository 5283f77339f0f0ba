package aggregate

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

const defaultMemoSize = 64

// Memo caches views by Params for one immutable snapshot. Concurrent
// requests for the same Params share a single computation.
type Memo struct {
	compute func(Params) *View
	limit   int

	mu      sync.Mutex
	entries map[Params]*View
	order   []Params

	group singleflight.Group
}

// NewMemo wraps compute. A non-positive limit uses the default size.
func NewMemo(limit int, compute func(Params) *View) *Memo {
	if limit <= 0 {
		limit = defaultMemoSize
	}
	return &Memo{
		compute: compute,
		limit:   limit,
		entries: make(map[Params]*View),
	}
}

// Get returns the view for params and whether it was already cached.
func (m *Memo) Get(params Params) (*View, bool) {
	params = params.Normalize()

	m.mu.Lock()
	if view, ok := m.entries[params]; ok {
		m.mu.Unlock()
		return view, true
	}
	m.mu.Unlock()

	result, _, _ := m.group.Do(params.cacheKey(), func() (any, error) {
		view := m.compute(params)
		m.store(params, view)
		return view, nil
	})
	return result.(*View), false
}

// Len is the number of cached views.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memo) store(params Params, view *View) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[params]; ok {
		return
	}
	for len(m.order) >= m.limit {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}
	m.entries[params] = view
	m.order = append(m.order, params)
}
