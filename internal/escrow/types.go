package escrow

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle state of a sponsorship campaign.
// Status only moves forward; Completed, Expired and Cancelled are
// terminal.
type CampaignStatus string

const (
	StatusOpen       CampaignStatus = "Open"
	StatusFunded     CampaignStatus = "Funded"
	StatusInProgress CampaignStatus = "InProgress"
	StatusCompleted  CampaignStatus = "Completed"
	StatusExpired    CampaignStatus = "Expired"
	StatusCancelled  CampaignStatus = "Cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s CampaignStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// MilestoneState is the verification state of a single milestone.
// States advance monotonically except Claimed -> Rejected, from which
// a fresh claim may retry. Released is terminal.
type MilestoneState string

const (
	MilestonePending  MilestoneState = "Pending"
	MilestoneClaimed  MilestoneState = "Claimed"
	MilestoneVerified MilestoneState = "Verified"
	MilestoneReleased MilestoneState = "Released"
	MilestoneRejected MilestoneState = "Rejected"
)

// Milestone is a discrete, independently verifiable unit of treatment
// progress gating a percentage of the committed funds.
type Milestone struct {
	Index             int            `json:"index"`
	Description       string         `json:"description"`
	ReleasePercentage int            `json:"releasePercentage"`
	State             MilestoneState `json:"state"`

	ClaimedBy    string    `json:"claimedBy,omitempty"`
	ClaimedAt    time.Time `json:"claimedAt,omitempty"`
	VerifiedBy   string    `json:"verifiedBy,omitempty"`
	VerifiedAt   time.Time `json:"verifiedAt,omitempty"`
	EvidenceHash string    `json:"evidenceHash,omitempty"`
	RejectReason string    `json:"rejectReason,omitempty"`
}

// Commitment is a sponsor's confirmed transfer of funds into a
// campaign's custody. Immutable once the underlying transfer is
// confirmed.
type Commitment struct {
	ID            uuid.UUID `json:"id"`
	CampaignID    uuid.UUID `json:"campaignId"`
	SponsorWallet string    `json:"sponsorWallet"`
	Amount        int64     `json:"amount"`
	LedgerTxRef   string    `json:"ledgerTxRef"`
	CreatedAt     time.Time `json:"createdAt"`
	Refunded      bool      `json:"refunded,omitempty"`
}

// ReleaseRecord is the sole source of truth that a milestone's funds
// have been paid out. Append-only: existence of a record for a
// (campaign, milestone index) pair means "already released".
type ReleaseRecord struct {
	CampaignID     uuid.UUID `json:"campaignId"`
	MilestoneIndex int       `json:"milestoneIndex"`
	Amount         int64     `json:"amount"`
	LedgerTxRef    string    `json:"ledgerTxRef"`
	AuthorizedBy   string    `json:"authorizedBy"`
	ReleasedAt     time.Time `json:"releasedAt"`
}

// Campaign is a patient's treatment-funding request with its milestone
// schedule, commitments and release history.
type Campaign struct {
	ID              uuid.UUID      `json:"id"`
	PatientWallet   string         `json:"patientWallet"`
	TargetAmount    int64          `json:"targetAmount"`
	CommittedAmount int64          `json:"committedAmount"`
	Status          CampaignStatus `json:"status"`
	Milestones      []Milestone    `json:"milestones"`
	Commitments     []Commitment   `json:"commitments"`
	Releases        []ReleaseRecord `json:"releases"`
	CreatedAt       time.Time      `json:"createdAt"`
	FundingDeadline time.Time      `json:"fundingDeadline"`
}

// clone returns a deep copy so callers outside the campaign lock never
// share slices with the stored record.
func (c *Campaign) clone() Campaign {
	out := *c
	out.Milestones = append([]Milestone(nil), c.Milestones...)
	out.Commitments = append([]Commitment(nil), c.Commitments...)
	out.Releases = append([]ReleaseRecord(nil), c.Releases...)
	return out
}

// MilestoneParams describes one milestone at campaign creation.
type MilestoneParams struct {
	Description       string `json:"description"`
	ReleasePercentage int    `json:"releasePercentage"`
}

// CreateCampaignParams are the inputs for registering a campaign.
type CreateCampaignParams struct {
	PatientWallet string
	TargetAmount  int64
	FundingWindow time.Duration
	Milestones    []MilestoneParams
}

// CommitFundsParams are the inputs for a sponsor commitment. AttemptID
// lets the client retry a timed-out commit with the same idempotency
// key; when empty a fresh attempt is generated.
type CommitFundsParams struct {
	SponsorWallet string
	Amount        int64
	AttemptID     string
}
