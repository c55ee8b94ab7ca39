package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"milestonetrust/escrow"
)

// Memory is an in-process escrow.Store with read-your-writes consistency.
// Records are cloned on the way in and out, and an Update commits only when
// the mutation closure succeeds, so a failed operation leaves no partial
// effect.
type Memory struct {
	mu    sync.RWMutex
	recs  map[string]escrow.EscrowContract
	index map[string][]string
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		recs:  make(map[string]escrow.EscrowContract),
		index: make(map[string][]string),
	}
}

func clone(rec escrow.EscrowContract) (escrow.EscrowContract, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: clone marshal: %w", err)
	}
	var out escrow.EscrowContract
	if err := json.Unmarshal(raw, &out); err != nil {
		return escrow.EscrowContract{}, fmt.Errorf("store: clone unmarshal: %w", err)
	}
	return out, nil
}

func (m *Memory) Create(_ context.Context, rec escrow.EscrowContract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; ok {
		return escrow.ErrExists
	}
	c, err := clone(rec)
	if err != nil {
		return err
	}
	m.recs[rec.ID] = c
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (escrow.EscrowContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return escrow.EscrowContract{}, escrow.ErrNotFound
	}
	return clone(rec)
}

func (m *Memory) Update(_ context.Context, id string, fn func(*escrow.EscrowContract) error) (escrow.EscrowContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return escrow.EscrowContract{}, escrow.ErrNotFound
	}
	working, err := clone(rec)
	if err != nil {
		return escrow.EscrowContract{}, err
	}
	if err := fn(&working); err != nil {
		return escrow.EscrowContract{}, err
	}
	committed, err := clone(working)
	if err != nil {
		return escrow.EscrowContract{}, err
	}
	m.recs[id] = committed
	return working, nil
}

func (m *Memory) Link(_ context.Context, account, contractID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.index[account] {
		if id == contractID {
			return nil
		}
	}
	m.index[account] = append(m.index[account], contractID)
	return nil
}

func (m *Memory) ListByAccount(_ context.Context, account string) ([]escrow.EscrowContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.index[account]
	out := make([]escrow.EscrowContract, 0, len(ids))
	for _, id := range ids {
		rec, ok := m.recs[id]
		if !ok {
			continue
		}
		c, err := clone(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
