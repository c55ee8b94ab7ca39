package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"milestonetrust/attest"
	"milestonetrust/escrow"
	"milestonetrust/events"
	"milestonetrust/payout"
	"milestonetrust/token"
)

var (
	// ErrDisputeExists signals the milestone already has an open dispute.
	ErrDisputeExists = errors.New("dispute: milestone already has an open dispute")
	// ErrNotDisputable signals the milestone state does not admit a dispute.
	ErrNotDisputable = errors.New("dispute: milestone state is not disputable")
	// ErrInsufficientSecurity signals the pool cannot cover the AI fee.
	ErrInsufficientSecurity = errors.New("dispute: security pool cannot cover processing fee")
	// ErrNoActiveDispute signals no dispute is awaiting a verdict.
	ErrNoActiveDispute = errors.New("dispute: no active dispute for milestone")
	// ErrNoResolvedDispute signals no AI-resolved dispute exists to act on.
	ErrNoResolvedDispute = errors.New("dispute: no resolved dispute for milestone")
	// ErrAlreadyAppealed signals a second appeal on the same dispute.
	ErrAlreadyAppealed = errors.New("dispute: resolution already appealed once")
	// ErrDeadlineNotReached rejects unilateral finalization before deadline.
	ErrDeadlineNotReached = errors.New("dispute: cannot finalize yet, deadline not reached")
	// ErrRoundOutOfSequence rejects non-sequential investigation rounds.
	ErrRoundOutOfSequence = errors.New("dispute: investigation round out of sequence")
	// ErrRoundLimitReached rejects rounds beyond the dispute's cap.
	ErrRoundLimitReached = errors.New("dispute: investigation round limit reached")
	// ErrInvalidSplit bounds the split percentage to [0,100].
	ErrInvalidSplit = errors.New("dispute: split percentage must be at most 100")
	// ErrNotOverridable signals an override on an ineligible dispute.
	ErrNotOverridable = errors.New("dispute: resolution cannot be overridden")
)

// TrustedKeys answers whether an attestor key is on the owner's allow-list.
type TrustedKeys interface {
	Trusted(key []byte) bool
}

// Engine runs the arbitration state machine: Pending → AiResolved /
// AppealResolved → Finalized, with one bounded appeal branch. It mutates
// contract records through the store and hands finalized outcomes to custody
// for settlement.
type Engine struct {
	store    escrow.Store
	treasury payout.Treasury
	sink     events.Sink
	keys     TrustedKeys
	policy   escrow.Policy

	// owner receives the one-time AI processing fee per dispute.
	owner string
	now   func() time.Time
}

// NewEngine builds the arbitration engine.
func NewEngine(store escrow.Store, treasury payout.Treasury, sink events.Sink, keys TrustedKeys, policy escrow.Policy, owner string) *Engine {
	return &Engine{
		store:    store,
		treasury: treasury,
		sink:     sink,
		keys:     keys,
		policy:   policy,
		owner:    owner,
		now:      time.Now,
	}
}

// Raise opens a dispute on a milestone, suspending its normal lifecycle.
// The raiser must be the client (or either party, per policy), the milestone
// must be in a disputable state, and the security pool must cover the AI
// processing fee.
func (e *Engine) Raise(ctx context.Context, caller, contractID, milestoneID, reason string) (escrow.EscrowContract, error) {
	rec, err := e.store.Update(ctx, contractID, func(c *escrow.EscrowContract) error {
		if caller != c.Client && !(e.policy.EitherPartyMayDispute && c.IsParty(caller)) {
			return escrow.ErrForbidden
		}
		if c.SecurityPool.Cmp(e.policy.AIProcessingFee) < 0 {
			return ErrInsufficientSecurity
		}
		m := c.FindMilestone(milestoneID)
		if m == nil {
			return escrow.ErrMilestoneNotFound
		}
		if !e.policy.Disputable(m.Status) {
			return ErrNotDisputable
		}
		if c.ActiveDispute(milestoneID) != nil {
			return ErrDisputeExists
		}

		m.Status = escrow.MilestoneDisputed
		c.Status = escrow.ContractDisputed
		c.Disputes = append(c.Disputes, escrow.Dispute{
			MilestoneID: milestoneID,
			RaisedBy:    caller,
			Reason:      reason,
			Status:      escrow.DisputePending,
			MaxRounds:   e.policy.MaxRounds,
			CreatedAt:   e.now(),
		})
		return nil
	})
	if err != nil {
		return escrow.EscrowContract{}, err
	}
	e.sink.Emit(ctx, "dispute.raised", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
		"raised_by":    caller,
	})
	return rec, nil
}

// VerdictSubmission carries an attested oracle verdict.
type VerdictSubmission struct {
	Resolution  escrow.Resolution
	Explanation string
	Signature   []byte
	SignerKey   []byte
	SignedText  string
}

// SubmitAIResolution ingests a TEE-attested verdict for the milestone's
// active dispute. The signature and allow-list checks run before any state
// mutation. A ContinueWork verdict finalizes immediately and reopens the
// milestone; anything else starts the contest window.
func (e *Engine) SubmitAIResolution(ctx context.Context, contractID, milestoneID string, sub VerdictSubmission) (escrow.EscrowContract, error) {
	if err := e.checkAttestation(sub.Signature, sub.SignerKey, sub.SignedText); err != nil {
		return escrow.EscrowContract{}, err
	}
	if err := validateResolution(sub.Resolution); err != nil {
		return escrow.EscrowContract{}, err
	}

	var fee token.Amount
	rec, err := e.store.Update(ctx, contractID, func(c *escrow.EscrowContract) error {
		d := c.ActiveDispute(milestoneID)
		if d == nil || (d.Status != escrow.DisputePending && d.Status != escrow.DisputeAppealed) {
			return ErrNoActiveDispute
		}
		fee = e.deductFee(c, d)
		return e.applyVerdict(c, d, sub)
	})
	if err != nil {
		return escrow.EscrowContract{}, err
	}

	if !fee.IsZero() {
		e.treasury.Transfer(ctx, e.owner, fee)
	}
	e.sink.Emit(ctx, "dispute.ai_resolution", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
	})
	return rec, nil
}

// RoundSubmission carries one attested investigation round. A final round may
// bundle the verdict that resolves the dispute.
type RoundSubmission struct {
	Round      int
	Analysis   string
	Findings   string
	Confidence uint8
	// Continue signals the oracle needs further analysis. The round becomes
	// final when Continue is false or the round cap is reached.
	Continue    bool
	Resolution  *escrow.Resolution
	Explanation string
	Signature   []byte
	SignerKey   []byte
	SignedText  string
}

// SubmitInvestigationRound appends the next sequential round to the active
// dispute's bounded deliberation. When the round is final and carries a
// verdict, the dispute resolves exactly as SubmitAIResolution would.
func (e *Engine) SubmitInvestigationRound(ctx context.Context, contractID, milestoneID string, sub RoundSubmission) (escrow.EscrowContract, error) {
	if err := e.checkAttestation(sub.Signature, sub.SignerKey, sub.SignedText); err != nil {
		return escrow.EscrowContract{}, err
	}
	if sub.Resolution != nil {
		if err := validateResolution(*sub.Resolution); err != nil {
			return escrow.EscrowContract{}, err
		}
	}

	var fee token.Amount
	rec, err := e.store.Update(ctx, contractID, func(c *escrow.EscrowContract) error {
		d := c.ActiveDispute(milestoneID)
		if d == nil || (d.Status != escrow.DisputePending && d.Status != escrow.DisputeAppealed) {
			return ErrNoActiveDispute
		}
		if sub.Round != len(d.Rounds)+1 {
			return ErrRoundOutOfSequence
		}
		if sub.Round > d.MaxRounds {
			return ErrRoundLimitReached
		}

		d.Rounds = append(d.Rounds, escrow.InvestigationRound{
			Round:       sub.Round,
			Analysis:    sub.Analysis,
			Findings:    sub.Findings,
			Confidence:  sub.Confidence,
			Continue:    sub.Continue,
			Signature:   sub.Signature,
			SignerKey:   sub.SignerKey,
			SignedText:  sub.SignedText,
			SubmittedAt: e.now(),
		})

		final := !sub.Continue || len(d.Rounds) == d.MaxRounds
		if final && sub.Resolution != nil {
			fee = e.deductFee(c, d)
			return e.applyVerdict(c, d, VerdictSubmission{
				Resolution:  *sub.Resolution,
				Explanation: sub.Explanation,
				Signature:   sub.Signature,
				SignerKey:   sub.SignerKey,
				SignedText:  sub.SignedText,
			})
		}
		return nil
	})
	if err != nil {
		return escrow.EscrowContract{}, err
	}

	if !fee.IsZero() {
		e.treasury.Transfer(ctx, e.owner, fee)
	}
	e.sink.Emit(ctx, "dispute.round_submitted", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
		"round":        fmt.Sprintf("%d", sub.Round),
	})
	return rec, nil
}

// AcceptResolution records a party's acceptance of the proposed verdict. The
// dispute finalizes immediately once both parties accept (or on the first
// acceptance in the single-acceptance variant), bypassing the deadline.
func (e *Engine) AcceptResolution(ctx context.Context, caller, contractID, milestoneID string) (escrow.EscrowContract, error) {
	finalized := false
	rec, err := e.store.Update(ctx, contractID, func(c *escrow.EscrowContract) error {
		if !c.IsParty(caller) {
			return escrow.ErrForbidden
		}
		d := c.ActiveDispute(milestoneID)
		if d == nil || (d.Status != escrow.DisputeAiResolved && d.Status != escrow.DisputeAppealResolved) {
			return ErrNoResolvedDispute
		}

		if caller == c.Client {
			d.ClientAccepted = true
		} else {
			d.FreelancerAccepted = true
		}

		if (d.ClientAccepted && d.FreelancerAccepted) || !e.policy.BothPartiesMustAccept {
			d.Status = escrow.DisputeFinalized
			finalized = true
		}
		return nil
	})
	if err != nil {
		return escrow.EscrowContract{}, err
	}

	topic := "dispute.accepted"
	if finalized {
		topic = "dispute.finalized"
	}
	e.sink.Emit(ctx, topic, map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
		"accepted_by":  caller,
	})
	return rec, nil
}

// AppealResolution escalates an AI-resolved, not-yet-finalized dispute into a
// fresh bounded investigation. Exactly one appeal is permitted per dispute;
// acceptance flags and the round log reset and the round cap is raised.
func (e *Engine) AppealResolution(ctx context.Context, caller, contractID, milestoneID string) (escrow.EscrowContract, error) {
	rec, err := e.store.Update(ctx, contractID, func(c *escrow.EscrowContract) error {
		if !c.IsParty(caller) {
			return escrow.ErrForbidden
		}
		d := c.ActiveDispute(milestoneID)
		if d == nil {
			return ErrNoResolvedDispute
		}
		if d.IsAppeal {
			return ErrAlreadyAppealed
		}
		if d.Status != escrow.DisputeAiResolved {
			return ErrNoResolvedDispute
		}

		d.Status = escrow.DisputeAppealed
		d.IsAppeal = true
		d.ClientAccepted = false
		d.FreelancerAccepted = false
		d.Rounds = nil
		d.MaxRounds = e.policy.MaxRoundsAppeal
		d.Deadline = nil
		return nil
	})
	if err != nil {
		return escrow.EscrowContract{}, err
	}
	e.sink.Emit(ctx, "dispute.appealed", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
		"appealed_by":  caller,
	})
	return rec, nil
}

// FinalizeResolution locks the verdict once the resolution deadline has
// passed or both parties have accepted, whichever comes first. Any caller may
// finalize; the timeout only unlocks forced progress.
func (e *Engine) FinalizeResolution(ctx context.Context, contractID, milestoneID string) (escrow.EscrowContract, error) {
	rec, err := e.store.Update(ctx, contractID, func(c *escrow.EscrowContract) error {
		d := c.ActiveDispute(milestoneID)
		if d == nil || (d.Status != escrow.DisputeAiResolved && d.Status != escrow.DisputeAppealResolved) {
			return ErrNoResolvedDispute
		}

		accepted := d.ClientAccepted && d.FreelancerAccepted
		timedOut := d.Deadline != nil && !e.now().Before(*d.Deadline)
		if !accepted && !timedOut {
			return ErrDeadlineNotReached
		}
		d.Status = escrow.DisputeFinalized
		return nil
	})
	if err != nil {
		return escrow.EscrowContract{}, err
	}
	e.sink.Emit(ctx, "dispute.finalized", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
	})
	return rec, nil
}

// OverrideToContinueWork is the client's escape valve: it converts an
// AI-resolved dispute, or a finalized but unsettled Client/Split verdict,
// into a ContinueWork outcome. The milestone reopens and a payment-request
// cooldown prevents immediate re-request cycling.
func (e *Engine) OverrideToContinueWork(ctx context.Context, caller, contractID, milestoneID string) (escrow.EscrowContract, error) {
	rec, err := e.store.Update(ctx, contractID, func(c *escrow.EscrowContract) error {
		if caller != c.Client {
			return escrow.ErrForbidden
		}

		d := c.ActiveDispute(milestoneID)
		switch {
		case d != nil && (d.Status == escrow.DisputeAiResolved || d.Status == escrow.DisputeAppealResolved):
			// resolved but not yet locked
		default:
			d = c.FinalizedDispute(milestoneID)
			if d == nil || d.FundsReleased || d.Resolution == nil {
				return ErrNotOverridable
			}
			if d.Resolution.Kind != escrow.ResolveClient && d.Resolution.Kind != escrow.ResolveSplit {
				return ErrNotOverridable
			}
		}

		m := c.FindMilestone(milestoneID)
		if m == nil {
			return escrow.ErrMilestoneNotFound
		}

		d.Resolution = &escrow.Resolution{Kind: escrow.ResolveContinueWork}
		d.Status = escrow.DisputeFinalized
		d.FundsReleased = true
		d.Deadline = nil

		m.Status = escrow.MilestoneInProgress
		m.PaymentRequestDeadline = nil
		cooldown := e.now().Add(e.policy.ReworkCooldown)
		m.PaymentCooldownUntil = &cooldown

		escrow.RefreshDisputeStatus(c)
		return nil
	})
	if err != nil {
		return escrow.EscrowContract{}, err
	}
	e.sink.Emit(ctx, "dispute.overridden", map[string]string{
		"contract_id":  contractID,
		"milestone_id": milestoneID,
	})
	return rec, nil
}

// checkAttestation verifies the signature over the verdict text and the
// signer's membership on the allow-list. Runs before any state mutation.
func (e *Engine) checkAttestation(signature, signerKey []byte, signedText string) error {
	if err := attest.Verify(signature, []byte(signedText), signerKey); err != nil {
		return err
	}
	if !e.keys.Trusted(signerKey) {
		return attest.ErrUntrustedSigner
	}
	return nil
}

// deductFee takes the one-time AI processing fee from the security pool,
// at most once per dispute, and returns the amount owed to the owner.
func (e *Engine) deductFee(c *escrow.EscrowContract, d *escrow.Dispute) token.Amount {
	fee := e.policy.AIProcessingFee
	if d.AIFeeDeducted || fee.IsZero() {
		return token.Zero()
	}
	c.SecurityPool = c.SecurityPool.Sub(fee)
	d.AIFeeDeducted = true
	return fee
}

// applyVerdict records the attested verdict on the dispute and advances the
// state machine: ContinueWork finalizes immediately with no transfer, other
// verdicts open the contest window.
func (e *Engine) applyVerdict(c *escrow.EscrowContract, d *escrow.Dispute, sub VerdictSubmission) error {
	res := sub.Resolution
	d.Resolution = &res
	d.Explanation = sub.Explanation
	d.Signature = sub.Signature
	d.SignerKey = sub.SignerKey
	d.SignedText = sub.SignedText

	if res.Kind == escrow.ResolveContinueWork {
		d.Status = escrow.DisputeFinalized
		d.FundsReleased = true
		d.Deadline = nil

		m := c.FindMilestone(d.MilestoneID)
		if m == nil {
			return escrow.ErrMilestoneNotFound
		}
		m.Status = escrow.MilestoneInProgress
		m.PaymentRequestDeadline = nil
		escrow.RefreshDisputeStatus(c)
		return nil
	}

	if d.IsAppeal {
		d.Status = escrow.DisputeAppealResolved
	} else {
		d.Status = escrow.DisputeAiResolved
	}
	deadline := e.now().Add(e.policy.ResolutionDeadline)
	d.Deadline = &deadline
	return nil
}

// validateResolution rejects unknown kinds and out-of-range splits before
// they can reach a settlement site.
func validateResolution(r escrow.Resolution) error {
	switch r.Kind {
	case escrow.ResolveFreelancer, escrow.ResolveClient, escrow.ResolveContinueWork:
		return nil
	case escrow.ResolveSplit:
		if r.FreelancerPct > 100 {
			return ErrInvalidSplit
		}
		return nil
	default:
		return fmt.Errorf("dispute: unknown resolution kind %q", r.Kind)
	}
}
