package keypool

import (
	"sort"
	"sync"
)

// Manager holds one pool per provider. Pools are constructed at startup and
// shared by reference across all concurrent scan sessions.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

func (m *Manager) Register(p *Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.Provider()] = p
}

func (m *Manager) Get(provider string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[provider]
	return p, ok
}

func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.pools))
	for name := range m.pools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Statuses() []Status {
	var out []Status
	for _, name := range m.Providers() {
		if p, ok := m.Get(name); ok {
			out = append(out, p.Status())
		}
	}
	return out
}
