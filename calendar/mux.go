package calendar

import (
	"fmt"
	"sort"
	"sync"

	"github.com/guilherme-santos/roomsync"
)

type Mux struct {
	mu        sync.Mutex
	providers map[string]roomsync.Provider
}

func NewMux() *Mux {
	return &Mux{
		providers: make(map[string]roomsync.Provider),
	}
}

func (m *Mux) Get(platform string) (roomsync.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	provider, ok := m.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: calendar %q is not implemented", roomsync.ErrConfig, platform)
	}
	return provider, nil
}

func (m *Mux) Register(platform string, provider roomsync.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[platform] = provider
}

// Providers returns the registered platform names, sorted.
func (m *Mux) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
