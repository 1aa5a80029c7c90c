package escrow

import (
	"context"
	"sort"
	"sync"
)

// Store is the contract registry. Update runs fn against the current record
// under the store's lock or transaction and persists the result only when fn
// returns nil.
type Store interface {
	Insert(ctx context.Context, c Contract) error
	Get(ctx context.Context, address string) (Contract, error)
	List(ctx context.Context) ([]Contract, error)
	Update(ctx context.Context, address string, fn func(*Contract) error) (Contract, error)
}

// MemoryStore keeps contracts for the lifetime of the process. Entries are
// never evicted.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Contract
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Contract),
	}
}

func (m *MemoryStore) Insert(_ context.Context, c Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[c.Address]; ok {
		return ErrContractExists
	}
	m.data[c.Address] = c.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, address string) (Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data[address]
	if !ok {
		return Contract{}, ErrContractNotFound
	}
	return c.clone(), nil
}

func (m *MemoryStore) List(_ context.Context) ([]Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Contract, 0, len(m.data))
	for _, c := range m.data {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Address < out[j].Address
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, address string, fn func(*Contract) error) (Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[address]
	if !ok {
		return Contract{}, ErrContractNotFound
	}
	working := c.clone()
	if err := fn(&working); err != nil {
		return Contract{}, err
	}
	m.data[address] = working.clone()
	return working, nil
}
