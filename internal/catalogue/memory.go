package catalogue

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/textnorm"
)

// Memory is an in-process Store. Records keep insertion order and are keyed
// by name, like the SQL stores.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int
}

func NewMemory(entries ...Entry) (*Memory, error) {
	m := &Memory{byName: make(map[string]int)}
	for _, e := range entries {
		if err := m.Upsert(context.Background(), e); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Memory) ActiveDiseases(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Lookup(_ context.Context, name string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return resolve(m.entries, name)
}

func (m *Memory) Upsert(_ context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := textnorm.Text(e.Name)
	if i, ok := m.byName[key]; ok {
		e.ID = m.entries[i].ID
		m.entries[i] = e
		return nil
	}
	m.byName[key] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Close() error { return nil }
