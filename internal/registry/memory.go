package registry

import (
	"context"
	"sync"
)

// MemoryRepository is a non-persistent in-memory repo preserving insertion order
type MemoryRepository struct {
	mu    sync.RWMutex
	order []string
	items map[string]*Service
}

func NewMemoryRepository(services ...*Service) *MemoryRepository {
	m := &MemoryRepository{items: map[string]*Service{}}
	for _, s := range services {
		_ = m.Save(context.Background(), s)
	}
	return m
}

func (m *MemoryRepository) Init(ctx context.Context) error { return nil }

func (m *MemoryRepository) LoadAll(ctx context.Context) ([]*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Service, 0, len(m.order))
	for _, name := range m.order {
		cp := *m.items[name]
		list = append(list, &cp)
	}
	return list, nil
}

func (m *MemoryRepository) Get(ctx context.Context, name string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.items[name]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) Save(ctx context.Context, s *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.Name]; !ok {
		m.order = append(m.order, s.Name)
	}
	cp := *s
	m.items[s.Name] = &cp
	return nil
}
