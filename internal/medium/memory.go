package medium

import (
	"context"
	"sync"

	"github.com/coffersTech/logpile/internal/model"
	"github.com/coffersTech/logpile/internal/sanitize"
)

// Memory is a threadsafe in-process medium holding sanitized copies of entries.
type Memory struct {
	opts PersistOptions

	mu      sync.RWMutex
	entries []model.Entry
}

func NewMemory(opts PersistOptions) *Memory {
	return &Memory{opts: opts, entries: make([]model.Entry, 0, 1024)}
}

// Persist stores a sanitized copy of e.
func (m *Memory) Persist(_ context.Context, e model.Entry) (bool, error) {
	if !m.opts.Admits(e) {
		return false, nil
	}
	clean, _ := sanitize.Sanitize(map[string]any(e), m.opts.Depth).(map[string]any)

	m.mu.Lock()
	m.entries = append(m.entries, model.Entry(clean))
	m.mu.Unlock()
	return true, nil
}

// Retrieve returns the stored entries in persist order.
func (m *Memory) Retrieve(_ context.Context) (Retrieval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Entry, len(m.entries))
	copy(out, m.entries)
	return Retrieval{Entries: out}, nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Medium() Medium {
	return Medium{Persist: []PersistFunc{m.Persist}, Retrieve: m.Retrieve}
}
