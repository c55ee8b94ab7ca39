package store

import (
	"context"
	"errors"
	"testing"

	"milestonetrust/escrow"
	"milestonetrust/token"
)

func rec(id string) escrow.EscrowContract {
	return escrow.EscrowContract{
		ID:           id,
		Client:       "alice.near",
		Freelancer:   "bob.near",
		TotalAmount:  token.FromUint64(100),
		FundedAmount: token.Zero(),
		SecurityPool: token.Zero(),
		Milestones: []escrow.Milestone{{
			ID:     "m1",
			Amount: token.FromUint64(100),
			Status: escrow.MilestoneNotFunded,
		}},
		Status: escrow.ContractActive,
	}
}

func TestMemoryCreateGet(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if err := st.Create(ctx, rec("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Create(ctx, rec("c1")); !errors.Is(err, escrow.ErrExists) {
		t.Fatalf("expected ErrExists got %v", err)
	}

	got, err := st.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "c1" || got.TotalAmount.String() != "100" {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, err := st.Get(ctx, "missing"); !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestMemoryGetReturnsClone(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.Create(ctx, rec("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Milestones[0].Status = escrow.MilestoneCompleted

	fresh, err := st.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh.Milestones[0].Status != escrow.MilestoneNotFunded {
		t.Fatal("mutating a returned record leaked into the store")
	}
}

func TestMemoryUpdateCommitsOnSuccess(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.Create(ctx, rec("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := st.Update(ctx, "c1", func(c *escrow.EscrowContract) error {
		c.FundedAmount = token.FromUint64(40)
		c.Milestones[0].Status = escrow.MilestoneFunded
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.FundedAmount.String() != "40" {
		t.Fatalf("expected returned record updated, got %s", out.FundedAmount)
	}

	got, err := st.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FundedAmount.String() != "40" || got.Milestones[0].Status != escrow.MilestoneFunded {
		t.Fatalf("expected committed update, got %+v", got)
	}
}

func TestMemoryUpdateRollsBackOnError(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.Create(ctx, rec("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	if _, err := st.Update(ctx, "c1", func(c *escrow.EscrowContract) error {
		c.FundedAmount = token.FromUint64(40)
		c.Milestones[0].Status = escrow.MilestoneFunded
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected closure error surfaced, got %v", err)
	}

	got, err := st.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.FundedAmount.IsZero() || got.Milestones[0].Status != escrow.MilestoneNotFunded {
		t.Fatalf("expected record untouched after failed update, got %+v", got)
	}
}

func TestMemoryUpdateMissing(t *testing.T) {
	st := NewMemory()
	if _, err := st.Update(context.Background(), "missing", func(*escrow.EscrowContract) error {
		return nil
	}); !errors.Is(err, escrow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestMemoryLinkAndList(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if err := st.Create(ctx, rec("c1")); err != nil {
		t.Fatalf("create c1: %v", err)
	}
	if err := st.Create(ctx, rec("c2")); err != nil {
		t.Fatalf("create c2: %v", err)
	}

	for _, id := range []string{"c1", "c2", "c1"} {
		if err := st.Link(ctx, "alice.near", id); err != nil {
			t.Fatalf("link %s: %v", id, err)
		}
	}

	list, err := st.ListByAccount(ctx, "alice.near")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c1" || list[1].ID != "c2" {
		t.Fatalf("expected [c1 c2] once each, got %+v", list)
	}

	empty, err := st.ListByAccount(ctx, "nobody.near")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v err %v", empty, err)
	}
}
