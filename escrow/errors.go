package escrow

import "errors"

var (
	// ErrMilestoneNotFound signals an unknown milestone id within a contract.
	ErrMilestoneNotFound = errors.New("escrow: milestone not found")
	// ErrForbidden signals the caller is not allowed to perform the action.
	ErrForbidden = errors.New("escrow: forbidden")
	// ErrBadStatus signals the record is not in a state admitting the
	// requested transition.
	ErrBadStatus = errors.New("escrow: invalid status for operation")
	// ErrNoFreelancer signals an operation that pays or involves a freelancer
	// while none is bound.
	ErrNoFreelancer = errors.New("escrow: no freelancer assigned")
	// ErrZeroDeposit rejects empty funding calls.
	ErrZeroDeposit = errors.New("escrow: deposit must be positive")
	// ErrFullyFunded rejects funding once funded_amount reached total_amount.
	ErrFullyFunded = errors.New("escrow: contract already fully funded")
	// ErrFundsReleased rejects a second settlement of the same dispute.
	ErrFundsReleased = errors.New("escrow: funds already released for dispute")
	// ErrSecurityPoolEmpty rejects releasing an empty security pool.
	ErrSecurityPoolEmpty = errors.New("escrow: security pool is empty")
	// ErrMilestonesIncomplete rejects completion while milestones remain open.
	ErrMilestonesIncomplete = errors.New("escrow: not all milestones completed")
	// ErrCooldownActive rejects a payment request during a rework cooldown.
	ErrCooldownActive = errors.New("escrow: payment request cooldown active")
	// ErrDeadlineNotReached rejects timeout-gated operations before the
	// stored deadline.
	ErrDeadlineNotReached = errors.New("escrow: deadline not reached")
	// ErrInvalidSecurityPct bounds the security deposit percentage.
	ErrInvalidSecurityPct = errors.New("escrow: security deposit must be between 5% and 30%")
	// ErrInvalidInvite rejects join attempts with a wrong or spent token.
	ErrInvalidInvite = errors.New("escrow: invalid invite token")
	// ErrFreelancerBound rejects binding a second freelancer.
	ErrFreelancerBound = errors.New("escrow: freelancer already bound")
	// ErrSelfHire rejects a client acting as their own freelancer.
	ErrSelfHire = errors.New("escrow: cannot be your own freelancer")
	// ErrNoResolution signals settlement of a dispute without a verdict.
	ErrNoResolution = errors.New("escrow: dispute has no resolution")
	// ErrNoDisputeToSettle signals no finalized dispute exists for the
	// milestone.
	ErrNoDisputeToSettle = errors.New("escrow: no finalized dispute for milestone")
)
