package escrow

import (
	"context"
	"time"

	"milestonetrust/events"
	"milestonetrust/payout"
	"milestonetrust/token"
)

// Lifecycle drives a funded milestone through its work states:
// Funded → InProgress → SubmittedForReview → Completed.
type Lifecycle struct {
	store    Store
	treasury payout.Treasury
	sink     events.Sink
	policy   Policy
	now      func() time.Time
}

// NewLifecycle builds the milestone lifecycle service.
func NewLifecycle(store Store, treasury payout.Treasury, sink events.Sink, policy Policy) *Lifecycle {
	return &Lifecycle{
		store:    store,
		treasury: treasury,
		sink:     sink,
		policy:   policy,
		now:      time.Now,
	}
}

// StartMilestone moves a funded milestone into progress. Freelancer-only.
func (s *Lifecycle) StartMilestone(ctx context.Context, caller, contractID, milestoneID string) (EscrowContract, error) {
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if c.Freelancer == "" || caller != c.Freelancer {
			return ErrForbidden
		}
		m := c.FindMilestone(milestoneID)
		if m == nil {
			return ErrMilestoneNotFound
		}
		if m.Status != MilestoneFunded {
			return ErrBadStatus
		}
		m.Status = MilestoneInProgress
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}
	s.sink.Emit(ctx, "milestone.started", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
	})
	return rec, nil
}

// RequestPayment submits an in-progress milestone for review and starts the
// client's review deadline. Blocked while a rework cooldown is active.
func (s *Lifecycle) RequestPayment(ctx context.Context, caller, contractID, milestoneID string) (EscrowContract, error) {
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if c.Freelancer == "" || caller != c.Freelancer {
			return ErrForbidden
		}
		m := c.FindMilestone(milestoneID)
		if m == nil {
			return ErrMilestoneNotFound
		}
		if m.Status != MilestoneInProgress {
			return ErrBadStatus
		}
		if m.PaymentCooldownUntil != nil && s.now().Before(*m.PaymentCooldownUntil) {
			return ErrCooldownActive
		}
		m.Status = MilestoneSubmittedForReview
		deadline := s.now().Add(s.policy.ReviewDeadline)
		m.PaymentRequestDeadline = &deadline
		m.PaymentCooldownUntil = nil
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}
	s.sink.Emit(ctx, "payment.requested", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
	})
	return rec, nil
}

// CancelPaymentRequest withdraws a pending review and clears its deadline.
// Freelancer-only.
func (s *Lifecycle) CancelPaymentRequest(ctx context.Context, caller, contractID, milestoneID string) (EscrowContract, error) {
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if c.Freelancer == "" || caller != c.Freelancer {
			return ErrForbidden
		}
		m := c.FindMilestone(milestoneID)
		if m == nil {
			return ErrMilestoneNotFound
		}
		if m.Status != MilestoneSubmittedForReview {
			return ErrBadStatus
		}
		m.Status = MilestoneInProgress
		m.PaymentRequestDeadline = nil
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}
	s.sink.Emit(ctx, "payment.request_cancelled", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
	})
	return rec, nil
}

// AutoApprovePayment completes a submitted milestone once the review deadline
// has passed without a client decision. Any caller may invoke it; the timeout
// unlocks forced progress, it does not cancel anything by itself.
func (s *Lifecycle) AutoApprovePayment(ctx context.Context, contractID, milestoneID string) (EscrowContract, error) {
	var (
		payee  string
		amount token.Amount
	)
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if c.Freelancer == "" {
			return ErrNoFreelancer
		}
		m := c.FindMilestone(milestoneID)
		if m == nil {
			return ErrMilestoneNotFound
		}
		if m.Status != MilestoneSubmittedForReview {
			return ErrBadStatus
		}
		if m.PaymentRequestDeadline == nil || s.now().Before(*m.PaymentRequestDeadline) {
			return ErrDeadlineNotReached
		}

		m.Status = MilestoneCompleted
		m.PaymentRequestDeadline = nil
		if c.AllMilestonesCompleted() {
			c.Status = ContractCompleted
		}
		payee = c.Freelancer
		amount = m.Amount
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}

	s.treasury.Transfer(ctx, payee, amount)
	s.sink.Emit(ctx, "payment.auto_approved", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
		"amount":       amount.String(),
	})
	return rec, nil
}
