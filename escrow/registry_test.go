package escrow

import (
	"context"
	"errors"
	"testing"

	"milestonetrust/token"
)

func newRegistry(st Store) *Registry {
	r := NewRegistry(st, newSink())
	next := 0
	r.idGenerator = func() string {
		next++
		return map[int]string{1: "c1", 2: "c2", 3: "c3"}[next]
	}
	return r
}

func milestoneInputs(amounts ...uint64) []MilestoneInput {
	out := make([]MilestoneInput, 0, len(amounts))
	for _, a := range amounts {
		out = append(out, MilestoneInput{Title: "work", Amount: token.FromUint64(a)})
	}
	return out
}

func TestCreateContract(t *testing.T) {
	st := newMemStore()
	reg := newRegistry(st)

	rec, err := reg.Create(context.Background(), "alice.near", CreateParams{
		Title:              "Landing page",
		Milestones:         milestoneInputs(10, 20),
		Freelancer:         "bob.near",
		SecurityDepositPct: 10,
		PromptHash:         "abc123",
		ModelID:            "Qwen/Qwen3-30B-A3B",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != ContractActive {
		t.Fatalf("expected active got %s", rec.Status)
	}
	if rec.TotalAmount.String() != "30" {
		t.Fatalf("expected total 30 got %s", rec.TotalAmount)
	}
	if len(rec.Milestones) != 2 || rec.Milestones[0].ID != "m1" || rec.Milestones[1].ID != "m2" {
		t.Fatalf("unexpected milestones %+v", rec.Milestones)
	}
	if rec.Milestones[0].Status != MilestoneNotFunded {
		t.Fatalf("expected not funded got %s", rec.Milestones[0].Status)
	}
	if rec.InviteToken != "" {
		t.Fatal("expected no invite token when freelancer assigned")
	}

	for _, account := range []string{"alice.near", "bob.near"} {
		list, err := reg.ListByAccount(context.Background(), account)
		if err != nil {
			t.Fatalf("list %s: %v", account, err)
		}
		if len(list) != 1 || list[0].ID != rec.ID {
			t.Fatalf("expected %s indexed for %s", rec.ID, account)
		}
	}

	hash, err := reg.GetPromptHash(context.Background(), rec.ID)
	if err != nil || hash != "abc123" {
		t.Fatalf("expected prompt hash abc123 got %q err %v", hash, err)
	}
}

func TestCreateContractDraftWithoutFreelancer(t *testing.T) {
	st := newMemStore()
	reg := newRegistry(st)

	rec, err := reg.Create(context.Background(), "alice.near", CreateParams{
		Title:              "Draft",
		Milestones:         milestoneInputs(10),
		SecurityDepositPct: 10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != ContractDraft {
		t.Fatalf("expected draft got %s", rec.Status)
	}
	if rec.InviteToken == "" {
		t.Fatal("expected invite token for draft contract")
	}
}

func TestCreateContractValidation(t *testing.T) {
	st := newMemStore()
	reg := newRegistry(st)
	ctx := context.Background()

	if _, err := reg.Create(ctx, "alice.near", CreateParams{
		Milestones: milestoneInputs(10), SecurityDepositPct: 50,
	}); !errors.Is(err, ErrInvalidSecurityPct) {
		t.Fatalf("expected ErrInvalidSecurityPct got %v", err)
	}
	if _, err := reg.Create(ctx, "alice.near", CreateParams{
		Milestones: milestoneInputs(10), SecurityDepositPct: 4,
	}); !errors.Is(err, ErrInvalidSecurityPct) {
		t.Fatalf("expected ErrInvalidSecurityPct for low pct got %v", err)
	}
	if _, err := reg.Create(ctx, "alice.near", CreateParams{
		Milestones: milestoneInputs(10), Freelancer: "alice.near", SecurityDepositPct: 10,
	}); !errors.Is(err, ErrSelfHire) {
		t.Fatalf("expected ErrSelfHire got %v", err)
	}
	if _, err := reg.Create(ctx, "alice.near", CreateParams{SecurityDepositPct: 10}); err == nil {
		t.Fatal("expected error for empty milestones")
	}
	if _, err := reg.Create(ctx, "alice.near", CreateParams{
		Milestones: milestoneInputs(0), SecurityDepositPct: 10,
	}); err == nil {
		t.Fatal("expected error for zero milestone amount")
	}
}

func TestJoinContract(t *testing.T) {
	st := newMemStore()
	reg := newRegistry(st)
	ctx := context.Background()

	rec, err := reg.Create(ctx, "alice.near", CreateParams{
		Milestones:         milestoneInputs(10),
		SecurityDepositPct: 10,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := reg.Join(ctx, "bob.near", rec.ID, "wrong-token"); !errors.Is(err, ErrInvalidInvite) {
		t.Fatalf("expected ErrInvalidInvite got %v", err)
	}
	if _, err := reg.Join(ctx, "alice.near", rec.ID, rec.InviteToken); !errors.Is(err, ErrSelfHire) {
		t.Fatalf("expected ErrSelfHire got %v", err)
	}

	joined, err := reg.Join(ctx, "bob.near", rec.ID, rec.InviteToken)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Freelancer != "bob.near" {
		t.Fatalf("expected freelancer bound got %q", joined.Freelancer)
	}
	if joined.Status != ContractActive {
		t.Fatalf("expected active got %s", joined.Status)
	}
	if joined.InviteToken != "" {
		t.Fatal("expected invite token consumed")
	}

	// The token is single-use and the freelancer binding immutable.
	if _, err := reg.Join(ctx, "carol.near", rec.ID, rec.InviteToken); !errors.Is(err, ErrFreelancerBound) {
		t.Fatalf("expected ErrFreelancerBound got %v", err)
	}

	list, err := reg.ListByAccount(ctx, "bob.near")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected joined contract indexed, got %v err %v", list, err)
	}
}

func TestGetUnknownContract(t *testing.T) {
	reg := newRegistry(newMemStore())
	if _, err := reg.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}
