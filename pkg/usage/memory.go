package usage

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	day      string
	caller   string
	provider string
	model    string
}

// MemoryStore keeps counters in a map. Data is lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[memoryKey]Totals
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[memoryKey]Totals)}
}

// Increment implements Store.
func (m *MemoryStore) Increment(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := memoryKey{
		day:      DayKey(rec.Time),
		caller:   rec.Caller,
		provider: rec.Provider,
		model:    rec.Model,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.rows[key]
	t.Requests++
	t.PromptTokens += int64(rec.PromptTokens)
	t.CompletionTokens += int64(rec.CompletionTokens)
	m.rows[key] = t
	return nil
}

// Read implements Store.
func (m *MemoryStore) Read(ctx context.Context, caller string, day time.Time) (Totals, error) {
	if err := ctx.Err(); err != nil {
		return Totals{}, err
	}

	dayKey := DayKey(day)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out Totals
	for k, t := range m.rows {
		if k.day != dayKey || k.caller != caller {
			continue
		}
		out.Requests += t.Requests
		out.PromptTokens += t.PromptTokens
		out.CompletionTokens += t.CompletionTokens
	}
	return out, nil
}

// Prune implements Store.
func (m *MemoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := DayKey(before)

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for k := range m.rows {
		if k.day < cutoff {
			delete(m.rows, k)
			deleted++
		}
	}
	return deleted, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
