package escrow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"milestonetrust/events"
	"milestonetrust/token"
)

// memStore is an in-package Store fake with clone-on-read and
// commit-on-success semantics, mirroring the production memory store.
type memStore struct {
	recs  map[string]EscrowContract
	index map[string][]string
}

func newMemStore() *memStore {
	return &memStore{
		recs:  make(map[string]EscrowContract),
		index: make(map[string][]string),
	}
}

func (m *memStore) Create(_ context.Context, rec EscrowContract) error {
	if _, ok := m.recs[rec.ID]; ok {
		return ErrExists
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (EscrowContract, error) {
	rec, ok := m.recs[id]
	if !ok {
		return EscrowContract{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) Update(_ context.Context, id string, fn func(*EscrowContract) error) (EscrowContract, error) {
	rec, ok := m.recs[id]
	if !ok {
		return EscrowContract{}, ErrNotFound
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return EscrowContract{}, err
	}
	var working EscrowContract
	if err := json.Unmarshal(raw, &working); err != nil {
		return EscrowContract{}, err
	}
	if err := fn(&working); err != nil {
		return EscrowContract{}, err
	}
	m.recs[id] = working
	return working, nil
}

func (m *memStore) Link(_ context.Context, account, contractID string) error {
	for _, id := range m.index[account] {
		if id == contractID {
			return nil
		}
	}
	m.index[account] = append(m.index[account], contractID)
	return nil
}

func (m *memStore) ListByAccount(_ context.Context, account string) ([]EscrowContract, error) {
	out := make([]EscrowContract, 0, len(m.index[account]))
	for _, id := range m.index[account] {
		out = append(out, m.recs[id])
	}
	return out, nil
}

// fakeClock lets tests move ambient time forward.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func amt(v uint64) token.Amount { return token.FromUint64(v) }

// seedContract stores a ready-made active contract with the given milestones.
func seedContract(t *testing.T, st *memStore, milestones []Milestone) EscrowContract {
	t.Helper()
	total := token.Zero()
	for _, m := range milestones {
		total = total.Add(m.Amount)
	}
	rec := EscrowContract{
		ID:                 "c1",
		Title:              "Landing page",
		Client:             "alice.near",
		Freelancer:         "bob.near",
		TotalAmount:        total,
		FundedAmount:       token.Zero(),
		SecurityDepositPct: 10,
		SecurityPool:       token.Zero(),
		Milestones:         milestones,
		Status:             ContractActive,
		CreatedAt:          time.Now(),
		PromptHash:         "hash",
		ModelID:            "model",
	}
	if err := st.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return rec
}

func newSink() *events.Memory { return &events.Memory{} }
