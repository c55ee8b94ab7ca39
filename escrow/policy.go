package escrow

import (
	"time"

	"milestonetrust/token"
)

// Policy captures the deployment-variant knobs observed across escrow
// deployments: which milestone states are disputable and by whom, where
// funding promotes a milestone to, and how resolutions are accepted.
type Policy struct {
	// ReviewDeadline is how long the client has to review a payment request
	// before anyone may auto-approve it.
	ReviewDeadline time.Duration
	// ResolutionDeadline is how long parties have to contest an AI resolution
	// before anyone may finalize it.
	ResolutionDeadline time.Duration
	// ReworkCooldown blocks request_payment for this long after a client
	// override reopens a milestone.
	ReworkCooldown time.Duration
	// AIProcessingFee is deducted from the security pool once per dispute and
	// forwarded to the engine owner. Raising a dispute requires the pool to
	// cover it.
	AIProcessingFee token.Amount
	// MaxRounds bounds investigation rounds before appeal; MaxRoundsAppeal
	// after appeal.
	MaxRounds       int
	MaxRoundsAppeal int
	// DisputableStates lists milestone states from which a dispute may be
	// raised.
	DisputableStates []MilestoneStatus
	// EitherPartyMayDispute widens raise_dispute from client-only to both
	// parties.
	EitherPartyMayDispute bool
	// FundingPromotesToInProgress skips the Funded state on promotion.
	FundingPromotesToInProgress bool
	// BothPartiesMustAccept requires dual acceptance to finalize early; when
	// false, acceptance by either party finalizes immediately.
	BothPartiesMustAccept bool
}

// DefaultPolicy mirrors the reference deployment: 48h deadlines, client-only
// disputes on milestones submitted for review, dual acceptance, no fee.
func DefaultPolicy() Policy {
	return Policy{
		ReviewDeadline:        48 * time.Hour,
		ResolutionDeadline:    48 * time.Hour,
		ReworkCooldown:        24 * time.Hour,
		AIProcessingFee:       token.Zero(),
		MaxRounds:             3,
		MaxRoundsAppeal:       5,
		DisputableStates:      []MilestoneStatus{MilestoneSubmittedForReview},
		BothPartiesMustAccept: true,
	}
}

// Disputable reports whether a milestone in the given state may be disputed.
func (p Policy) Disputable(s MilestoneStatus) bool {
	for _, allowed := range p.DisputableStates {
		if allowed == s {
			return true
		}
	}
	return false
}

// PromotionTarget is the state a milestone enters when its funding threshold
// is met.
func (p Policy) PromotionTarget() MilestoneStatus {
	if p.FundingPromotesToInProgress {
		return MilestoneInProgress
	}
	return MilestoneFunded
}
