package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"milestonetrust/events"
	"milestonetrust/token"
)

// Registry creates contracts, binds freelancers and serves lookups. It owns
// the account→contracts index.
type Registry struct {
	store       Store
	sink        events.Sink
	idGenerator func() string
	now         func() time.Time
}

// NewRegistry builds a Registry over the given store.
func NewRegistry(store Store, sink events.Sink) *Registry {
	return &Registry{
		store:       store,
		sink:        sink,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// CreateParams carries client-supplied contract creation data. Freelancer may
// be empty; the contract then starts in Draft with a single-use invite token.
type CreateParams struct {
	Title              string
	Description        string
	Milestones         []MilestoneInput
	Freelancer         string
	SecurityDepositPct uint64
	PromptHash         string
	ModelID            string
}

// Create registers a new escrow contract owned by the calling client.
func (r *Registry) Create(ctx context.Context, client string, params CreateParams) (EscrowContract, error) {
	if client == "" {
		return EscrowContract{}, fmt.Errorf("escrow: client account required")
	}
	if params.SecurityDepositPct < 5 || params.SecurityDepositPct > 30 {
		return EscrowContract{}, ErrInvalidSecurityPct
	}
	if params.Freelancer == client {
		return EscrowContract{}, ErrSelfHire
	}
	if len(params.Milestones) == 0 {
		return EscrowContract{}, fmt.Errorf("escrow: at least one milestone required")
	}

	total := token.Zero()
	milestones := make([]Milestone, 0, len(params.Milestones))
	for i, in := range params.Milestones {
		if in.Amount.IsZero() {
			return EscrowContract{}, fmt.Errorf("escrow: milestone %d amount must be positive", i+1)
		}
		total = total.Add(in.Amount)
		milestones = append(milestones, Milestone{
			ID:          fmt.Sprintf("m%d", i+1),
			Title:       in.Title,
			Description: in.Description,
			Amount:      in.Amount,
			Status:      MilestoneNotFunded,
		})
	}

	rec := EscrowContract{
		ID:                 r.idGenerator(),
		Title:              params.Title,
		Description:        params.Description,
		Client:             client,
		Freelancer:         params.Freelancer,
		TotalAmount:        total,
		FundedAmount:       token.Zero(),
		SecurityDepositPct: params.SecurityDepositPct,
		SecurityPool:       token.Zero(),
		Milestones:         milestones,
		Status:             ContractActive,
		CreatedAt:          r.now(),
		PromptHash:         params.PromptHash,
		ModelID:            params.ModelID,
	}
	if params.Freelancer == "" {
		rec.Status = ContractDraft
		rec.InviteToken = r.idGenerator()
	}

	if err := r.store.Create(ctx, rec); err != nil {
		return EscrowContract{}, fmt.Errorf("escrow: create contract: %w", err)
	}
	if err := r.store.Link(ctx, client, rec.ID); err != nil {
		return EscrowContract{}, fmt.Errorf("escrow: index client: %w", err)
	}
	if params.Freelancer != "" {
		if err := r.store.Link(ctx, params.Freelancer, rec.ID); err != nil {
			return EscrowContract{}, fmt.Errorf("escrow: index freelancer: %w", err)
		}
	}

	r.sink.Emit(ctx, "contract.created", map[string]string{
		"contract_id": rec.ID,
		"client":      client,
	})
	return rec, nil
}

// Join binds the calling freelancer to a draft contract via its single-use
// invite token. Once bound the freelancer is immutable.
func (r *Registry) Join(ctx context.Context, freelancer, contractID, inviteToken string) (EscrowContract, error) {
	rec, err := r.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if c.Freelancer != "" {
			return ErrFreelancerBound
		}
		if c.InviteToken == "" || c.InviteToken != inviteToken {
			return ErrInvalidInvite
		}
		if freelancer == c.Client {
			return ErrSelfHire
		}
		c.Freelancer = freelancer
		c.Status = ContractActive
		c.InviteToken = ""
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}

	if err := r.store.Link(ctx, freelancer, contractID); err != nil {
		return EscrowContract{}, fmt.Errorf("escrow: index freelancer: %w", err)
	}

	r.sink.Emit(ctx, "contract.joined", map[string]string{
		"contract_id": contractID,
		"freelancer":  freelancer,
	})
	return rec, nil
}

// Get returns a contract by id.
func (r *Registry) Get(ctx context.Context, contractID string) (EscrowContract, error) {
	return r.store.Get(ctx, contractID)
}

// ListByAccount returns every contract an account participates in.
func (r *Registry) ListByAccount(ctx context.Context, account string) ([]EscrowContract, error) {
	return r.store.ListByAccount(ctx, account)
}

// GetDispute returns the latest dispute for a milestone.
func (r *Registry) GetDispute(ctx context.Context, contractID, milestoneID string) (Dispute, error) {
	rec, err := r.store.Get(ctx, contractID)
	if err != nil {
		return Dispute{}, err
	}
	for i := len(rec.Disputes) - 1; i >= 0; i-- {
		if rec.Disputes[i].MilestoneID == milestoneID {
			return rec.Disputes[i], nil
		}
	}
	return Dispute{}, fmt.Errorf("escrow: no dispute for milestone %s", milestoneID)
}

// GetInvestigationRounds returns the round log of a milestone's latest dispute.
func (r *Registry) GetInvestigationRounds(ctx context.Context, contractID, milestoneID string) ([]InvestigationRound, error) {
	d, err := r.GetDispute(ctx, contractID, milestoneID)
	if err != nil {
		return nil, err
	}
	return d.Rounds, nil
}

// GetPromptHash returns the prompt provenance hash of a contract.
func (r *Registry) GetPromptHash(ctx context.Context, contractID string) (string, error) {
	rec, err := r.store.Get(ctx, contractID)
	if err != nil {
		return "", err
	}
	return rec.PromptHash, nil
}
