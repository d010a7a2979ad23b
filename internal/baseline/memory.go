package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryStore keeps baselines in a map with an optional JSON snapshot file,
// suitable for single-node deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	store    map[string]*Baseline
	snapshot string
}

// NewMemoryStore creates an in-memory store. With a non-empty snapshotPath
// the store loads existing baselines at startup and persists on every save.
func NewMemoryStore(snapshotPath string) (*MemoryStore, error) {
	ms := &MemoryStore{
		store:    make(map[string]*Baseline),
		snapshot: snapshotPath,
	}
	if snapshotPath != "" {
		if err := ms.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

func (m *MemoryStore) Save(_ context.Context, b *Baseline) error {
	if err := validateName(b.Name); err != nil {
		return err
	}

	m.mu.Lock()
	stored := cloneBaseline(b)
	if existing, ok := m.store[b.Name]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	stamp(stored)
	m.store[b.Name] = stored
	m.mu.Unlock()

	if m.snapshot != "" {
		return m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, name string) (*Baseline, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.store[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBaseline(b), nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.store))
	for name := range m.store {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	_, ok := m.store[name]
	delete(m.store, name)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if m.snapshot != "" {
		return m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) Close() error {
	if m.snapshot != "" {
		return m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) loadSnapshot() error {
	data, err := os.ReadFile(m.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot map[string]*Baseline
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, b := range snapshot {
		m.store[name] = b
	}
	return nil
}

func (m *MemoryStore) saveSnapshot() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.store, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return os.WriteFile(m.snapshot, data, 0600)
}

func cloneBaseline(b *Baseline) *Baseline {
	metrics := make(map[string]float64, len(b.Metrics))
	for k, v := range b.Metrics {
		metrics[k] = v
	}
	return &Baseline{
		Name:      b.Name,
		Metrics:   metrics,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}
