package escrow

import (
	"time"

	"milestonetrust/token"
)

// ContractStatus represents the lifecycle of an escrow contract.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractDisputed  ContractStatus = "disputed"
	ContractResolved  ContractStatus = "resolved"
)

// MilestoneStatus represents the state machine of a payable milestone.
type MilestoneStatus string

const (
	MilestoneNotFunded          MilestoneStatus = "not_funded"
	MilestoneFunded             MilestoneStatus = "funded"
	MilestoneInProgress         MilestoneStatus = "in_progress"
	MilestoneSubmittedForReview MilestoneStatus = "submitted_for_review"
	MilestoneCompleted          MilestoneStatus = "completed"
	MilestoneDisputed           MilestoneStatus = "disputed"
)

// DisputeStatus represents the arbitration state machine.
type DisputeStatus string

const (
	DisputePending        DisputeStatus = "pending"
	DisputeAiResolved     DisputeStatus = "ai_resolved"
	DisputeAppealed       DisputeStatus = "appealed"
	DisputeAppealResolved DisputeStatus = "appeal_resolved"
	DisputeFinalized      DisputeStatus = "finalized"
)

// ResolutionKind tags an oracle verdict. Split carries a payload; every
// consumption site must switch exhaustively and reject unknown kinds.
type ResolutionKind string

const (
	ResolveFreelancer   ResolutionKind = "freelancer"
	ResolveClient       ResolutionKind = "client"
	ResolveContinueWork ResolutionKind = "continue_work"
	ResolveSplit        ResolutionKind = "split"
)

// Resolution is the oracle verdict attached to a dispute. FreelancerPct is
// meaningful only when Kind is ResolveSplit.
type Resolution struct {
	Kind          ResolutionKind `json:"kind"`
	FreelancerPct uint64         `json:"freelancer_pct,omitempty"`
}

// Milestone is an ordered unit of payable work inside a contract. The amount
// is fixed at creation; milestones are never destroyed, only transitioned.
type Milestone struct {
	ID                     string          `json:"id"`
	Title                  string          `json:"title"`
	Description            string          `json:"description"`
	Amount                 token.Amount    `json:"amount"`
	Status                 MilestoneStatus `json:"status"`
	PaymentRequestDeadline *time.Time      `json:"payment_request_deadline,omitempty"`
	PaymentCooldownUntil   *time.Time      `json:"payment_cooldown_until,omitempty"`
}

// InvestigationRound is one attested oracle submission within a dispute's
// bounded deliberation. Append-only; immutable once recorded.
type InvestigationRound struct {
	Round       int       `json:"round"`
	Analysis    string    `json:"analysis"`
	Findings    string    `json:"findings"`
	Confidence  uint8     `json:"confidence"`
	Continue    bool      `json:"continue"`
	Signature   []byte    `json:"signature"`
	SignerKey   []byte    `json:"signer_key"`
	SignedText  string    `json:"signed_text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Dispute is a permanent audit record of one dispute event on a milestone.
// At most one dispute per milestone is non-terminal at a time.
type Dispute struct {
	MilestoneID        string               `json:"milestone_id"`
	RaisedBy           string               `json:"raised_by"`
	Reason             string               `json:"reason"`
	Status             DisputeStatus        `json:"status"`
	Resolution         *Resolution          `json:"resolution,omitempty"`
	Explanation        string               `json:"explanation,omitempty"`
	Deadline           *time.Time           `json:"deadline,omitempty"`
	ClientAccepted     bool                 `json:"client_accepted"`
	FreelancerAccepted bool                 `json:"freelancer_accepted"`
	IsAppeal           bool                 `json:"is_appeal"`
	AIFeeDeducted      bool                 `json:"ai_fee_deducted"`
	Rounds             []InvestigationRound `json:"rounds,omitempty"`
	MaxRounds          int                  `json:"max_rounds"`
	Signature          []byte               `json:"signature,omitempty"`
	SignerKey          []byte               `json:"signer_key,omitempty"`
	SignedText         string               `json:"signed_text,omitempty"`
	FundsReleased      bool                 `json:"funds_released"`
	CreatedAt          time.Time            `json:"created_at"`
}

// EscrowContract is the unit of work between exactly one client and at most
// one freelancer. An empty Freelancer means no freelancer is bound yet; once
// bound it is immutable.
type EscrowContract struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Client             string         `json:"client"`
	Freelancer         string         `json:"freelancer,omitempty"`
	TotalAmount        token.Amount   `json:"total_amount"`
	FundedAmount       token.Amount   `json:"funded_amount"`
	SecurityDepositPct uint64         `json:"security_deposit_pct"`
	SecurityPool       token.Amount   `json:"security_pool"`
	Milestones         []Milestone    `json:"milestones"`
	Disputes           []Dispute      `json:"disputes,omitempty"`
	Status             ContractStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	InviteToken        string         `json:"invite_token,omitempty"`
	PromptHash         string         `json:"prompt_hash"`
	ModelID            string         `json:"model_id"`
}

// MilestoneInput is the client-supplied shape for contract creation.
type MilestoneInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Amount      token.Amount `json:"amount"`
}

// FindMilestone returns a mutable reference to the milestone with the given id.
func (c *EscrowContract) FindMilestone(id string) *Milestone {
	for i := range c.Milestones {
		if c.Milestones[i].ID == id {
			return &c.Milestones[i]
		}
	}
	return nil
}

// ActiveDispute returns the non-terminal dispute for a milestone, if any.
func (c *EscrowContract) ActiveDispute(milestoneID string) *Dispute {
	for i := range c.Disputes {
		d := &c.Disputes[i]
		if d.MilestoneID == milestoneID && d.Status != DisputeFinalized {
			return d
		}
	}
	return nil
}

// FinalizedDispute returns the latest finalized dispute for a milestone whose
// funds have not yet been released.
func (c *EscrowContract) FinalizedDispute(milestoneID string) *Dispute {
	for i := len(c.Disputes) - 1; i >= 0; i-- {
		d := &c.Disputes[i]
		if d.MilestoneID == milestoneID && d.Status == DisputeFinalized {
			return d
		}
	}
	return nil
}

// AllMilestonesCompleted reports whether every milestone reached Completed.
func (c *EscrowContract) AllMilestonesCompleted() bool {
	for i := range c.Milestones {
		if c.Milestones[i].Status != MilestoneCompleted {
			return false
		}
	}
	return true
}

// HasOpenDispute reports whether any dispute on the contract is non-terminal.
func (c *EscrowContract) HasOpenDispute() bool {
	for i := range c.Disputes {
		if c.Disputes[i].Status != DisputeFinalized {
			return true
		}
	}
	return false
}

// IsParty reports whether the account is the client or the bound freelancer.
func (c *EscrowContract) IsParty(account string) bool {
	return account == c.Client || (c.Freelancer != "" && account == c.Freelancer)
}
