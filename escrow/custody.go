package escrow

import (
	"context"
	"fmt"
	"time"

	"milestonetrust/events"
	"milestonetrust/payout"
	"milestonetrust/token"
)

// Custody moves money: deposit intake and the security split, milestone
// funding promotion, payment release, refunds and dispute settlement. All
// ledger mutation commits through the store before any transfer is scheduled,
// so a failed transfer can never re-enter and double-spend.
type Custody struct {
	store    Store
	treasury payout.Treasury
	sink     events.Sink
	policy   Policy
	now      func() time.Time
}

// NewCustody builds the custody service.
func NewCustody(store Store, treasury payout.Treasury, sink events.Sink, policy Policy) *Custody {
	return &Custody{
		store:    store,
		treasury: treasury,
		sink:     sink,
		policy:   policy,
		now:      time.Now,
	}
}

// Fund applies a deposit from a contract party. The deposit splits so that
// the security pool accrues at pct percent of the main contribution:
// security = deposit*pct/(100+pct). The main part is capped at the remaining
// unfunded total and any excess is refunded to the depositor. Milestones
// whose cumulative threshold is now met are promoted in order.
func (s *Custody) Fund(ctx context.Context, funder, contractID string, deposit token.Amount) (EscrowContract, error) {
	if deposit.IsZero() {
		return EscrowContract{}, ErrZeroDeposit
	}

	var refund token.Amount
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if c.Status != ContractActive {
			return ErrBadStatus
		}
		if !c.IsParty(funder) {
			return ErrForbidden
		}
		if c.FundedAmount.Cmp(c.TotalAmount) >= 0 {
			return ErrFullyFunded
		}

		security := deposit.MulDiv(c.SecurityDepositPct, 100+c.SecurityDepositPct)
		main := deposit.Sub(security)

		remaining := c.TotalAmount.Sub(c.FundedAmount)
		applied := main.Min(remaining)
		refund = main.Sub(applied)

		c.SecurityPool = c.SecurityPool.Add(security)
		c.FundedAmount = c.FundedAmount.Add(applied)

		available := c.FundedAmount.Add(c.SecurityPool)
		cumulative := token.Zero()
		for i := range c.Milestones {
			cumulative = cumulative.Add(c.Milestones[i].Amount)
			if c.Milestones[i].Status == MilestoneNotFunded && available.Cmp(cumulative) >= 0 {
				c.Milestones[i].Status = s.policy.PromotionTarget()
			}
		}
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}

	if !refund.IsZero() {
		s.treasury.Transfer(ctx, funder, refund)
	}
	s.sink.Emit(ctx, "escrow.funded", map[string]string{
		"contract_id": contractID,
		"funder":      funder,
		"amount":      deposit.String(),
		"refund":      refund.String(),
	})
	return rec, nil
}

// TopUpSecurity adds directly to the security pool outside the funding
// formula. Either party may top up.
func (s *Custody) TopUpSecurity(ctx context.Context, caller, contractID string, amount token.Amount) (EscrowContract, error) {
	if amount.IsZero() {
		return EscrowContract{}, ErrZeroDeposit
	}
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if !c.IsParty(caller) {
			return ErrForbidden
		}
		c.SecurityPool = c.SecurityPool.Add(amount)
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}
	s.sink.Emit(ctx, "security.topped_up", map[string]string{
		"contract_id": contractID,
		"amount":      amount.String(),
	})
	return rec, nil
}

// ApproveMilestone releases a reviewed milestone's amount to the freelancer
// and completes it. Client-only.
func (s *Custody) ApproveMilestone(ctx context.Context, caller, contractID, milestoneID string) (EscrowContract, error) {
	var (
		payee  string
		amount token.Amount
	)
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if caller != c.Client {
			return ErrForbidden
		}
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
	s.sink.Emit(ctx, "milestone.approved", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
		"amount":       amount.String(),
	})
	return rec, nil
}

// ReleaseDisputeFunds converts a finalized dispute's resolution into fund
// movement, exactly once. A second call is a hard failure, not a no-op. Any
// caller may settle; the outcome was locked at finalization.
func (s *Custody) ReleaseDisputeFunds(ctx context.Context, contractID, milestoneID string) (EscrowContract, error) {
	var transfers []payout.Transfer
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		d := c.FinalizedDispute(milestoneID)
		if d == nil {
			return ErrNoDisputeToSettle
		}
		if d.FundsReleased {
			return ErrFundsReleased
		}
		if d.Resolution == nil {
			return ErrNoResolution
		}
		if c.Freelancer == "" {
			return ErrNoFreelancer
		}
		m := c.FindMilestone(milestoneID)
		if m == nil {
			return ErrMilestoneNotFound
		}

		d.FundsReleased = true
		amount := m.Amount

		switch d.Resolution.Kind {
		case ResolveFreelancer:
			m.Status = MilestoneCompleted
			transfers = append(transfers, payout.Transfer{Account: c.Freelancer, Amount: amount})
		case ResolveClient:
			m.Status = MilestoneCompleted
			transfers = append(transfers, payout.Transfer{Account: c.Client, Amount: amount})
		case ResolveContinueWork:
			m.Status = MilestoneInProgress
			m.PaymentRequestDeadline = nil
		case ResolveSplit:
			pct := d.Resolution.FreelancerPct
			if pct > 100 {
				return fmt.Errorf("escrow: invalid split percentage %d", pct)
			}
			m.Status = MilestoneCompleted
			freelancerAmount := amount.MulDiv(pct, 100)
			clientAmount := amount.Sub(freelancerAmount)
			transfers = append(transfers,
				payout.Transfer{Account: c.Freelancer, Amount: freelancerAmount},
				payout.Transfer{Account: c.Client, Amount: clientAmount},
			)
		default:
			return fmt.Errorf("escrow: unknown resolution kind %q", d.Resolution.Kind)
		}

		RefreshDisputeStatus(c)
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}

	for _, t := range transfers {
		s.treasury.Transfer(ctx, t.Account, t.Amount)
	}
	s.sink.Emit(ctx, "dispute.funds_released", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
	})
	return rec, nil
}

// CompleteContractSecurity releases the whole security pool to the freelancer
// once every milestone is completed.
func (s *Custody) CompleteContractSecurity(ctx context.Context, contractID string) (EscrowContract, error) {
	var (
		payee string
		pool  token.Amount
	)
	rec, err := s.store.Update(ctx, contractID, func(c *EscrowContract) error {
		if !c.AllMilestonesCompleted() {
			return ErrMilestonesIncomplete
		}
		if c.SecurityPool.IsZero() {
			return ErrSecurityPoolEmpty
		}
		if c.Freelancer == "" {
			return ErrNoFreelancer
		}
		pool = c.SecurityPool
		payee = c.Freelancer
		c.SecurityPool = token.Zero()
		return nil
	})
	if err != nil {
		return EscrowContract{}, err
	}

	s.treasury.Transfer(ctx, payee, pool)
	s.sink.Emit(ctx, "security.released", map[string]string{
		"contract_id": contractID,
		"amount":      pool.String(),
	})
	return rec, nil
}

// RefreshDisputeStatus recomputes contract status once a dispute settles:
// Disputed holds only while a dispute is open; a fully completed contract
// that went through arbitration ends Resolved.
func RefreshDisputeStatus(c *EscrowContract) {
	if c.HasOpenDispute() {
		c.Status = ContractDisputed
		return
	}
	if c.AllMilestonesCompleted() {
		c.Status = ContractResolved
		return
	}
	c.Status = ContractActive
}
