package verifier

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/escrow"
	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/logger"
)

// Error is a milestone state-machine violation.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNotClaimable is returned when a claim is attempted on a
	// milestone that is not Pending, or on a campaign not yet funded
	ErrNotClaimable = &Error{Code: "NOT_CLAIMABLE", Message: "milestone cannot be claimed in its current state", Status: http.StatusConflict}

	// ErrNotClaimed is returned when verification or rejection is
	// attempted on a milestone without an open completion claim
	ErrNotClaimed = &Error{Code: "MILESTONE_NOT_CLAIMED", Message: "milestone has no completion claim to review", Status: http.StatusConflict}

	// ErrConflictOfInterest is returned when a verifier tries to verify
	// their own completion claim
	ErrConflictOfInterest = &Error{Code: "CONFLICT_OF_INTEREST", Message: "claimant cannot verify their own milestone", Status: http.StatusForbidden}

	// ErrVerifierRole is returned when the verifier holds neither the
	// provider nor the witness role
	ErrVerifierRole = &Error{Code: "INSUFFICIENT_ROLE", Message: "verification requires a provider or witness identity", Status: http.StatusForbidden}
)

// Event signals that a milestone passed independent verification. The
// escrow consumes these to surface release eligibility; it re-validates
// state itself, so a lost or duplicate event delays but never corrupts
// a release.
type Event struct {
	CampaignID     uuid.UUID
	MilestoneIndex int
	VerifiedBy     string
}

// Verifier drives each milestone through claim, independent
// verification and rejection. It is deliberately separate from fund
// movement: nothing here touches money, and the escrow's release path
// re-checks milestone state on its own.
type Verifier struct {
	store  escrow.CampaignStore
	events chan Event
	log    *zap.Logger
	now    func() time.Time
}

// New creates a milestone verifier over the shared campaign store.
func New(store escrow.CampaignStore) *Verifier {
	return &Verifier{
		store:  store,
		events: make(chan Event, 64),
		log:    logger.Log,
		now:    time.Now,
	}
}

// Events is the stream of verified-milestone notifications.
func (v *Verifier) Events() <-chan Event {
	return v.events
}

// Claim records a completion claim for a milestone. Only Pending
// milestones on funded campaigns can be claimed; the first claim moves
// the campaign from Funded to InProgress.
func (v *Verifier) Claim(campaignID uuid.UUID, milestoneIndex int, claimant identity.Identity) error {
	err := v.store.Update(campaignID, func(c *escrow.Campaign) error {
		if c.Status != escrow.StatusFunded && c.Status != escrow.StatusInProgress {
			return ErrNotClaimable
		}
		if milestoneIndex < 0 || milestoneIndex >= len(c.Milestones) {
			return escrow.ErrMilestoneNotFound
		}

		m := &c.Milestones[milestoneIndex]
		// A rejected claim retries from the top.
		if m.State != escrow.MilestonePending && m.State != escrow.MilestoneRejected {
			return ErrNotClaimable
		}

		m.State = escrow.MilestoneClaimed
		m.ClaimedBy = claimant.WalletAddress
		m.ClaimedAt = v.now()
		m.RejectReason = ""

		if c.Status == escrow.StatusFunded {
			c.Status = escrow.StatusInProgress
		}
		return nil
	})
	if err != nil {
		return err
	}

	v.log.Info("Milestone claimed",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("milestone_index", milestoneIndex),
		zap.String("claimed_by", claimant.WalletAddress))
	return nil
}

// Verify confirms a claimed milestone. The verifier must hold the
// provider or witness role and must not be the claimant; the evidence
// hash is recorded for audit. On success an event is emitted for the
// escrow's release path.
func (v *Verifier) Verify(campaignID uuid.UUID, milestoneIndex int, by identity.Identity, evidenceHash string) error {
	if by.Role != identity.RoleProvider && by.Role != identity.RoleWitness {
		return ErrVerifierRole
	}

	err := v.store.Update(campaignID, func(c *escrow.Campaign) error {
		if milestoneIndex < 0 || milestoneIndex >= len(c.Milestones) {
			return escrow.ErrMilestoneNotFound
		}

		m := &c.Milestones[milestoneIndex]
		if m.State != escrow.MilestoneClaimed {
			return ErrNotClaimed
		}
		if m.ClaimedBy == by.WalletAddress {
			return ErrConflictOfInterest
		}

		m.State = escrow.MilestoneVerified
		m.VerifiedBy = by.WalletAddress
		m.VerifiedAt = v.now()
		m.EvidenceHash = evidenceHash
		return nil
	})
	if err != nil {
		return err
	}

	v.log.Info("Milestone verified",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("milestone_index", milestoneIndex),
		zap.String("verified_by", by.WalletAddress))

	// Push, don't poll. A full buffer drops the event; the release path
	// re-checks state so this only delays visibility.
	select {
	case v.events <- Event{CampaignID: campaignID, MilestoneIndex: milestoneIndex, VerifiedBy: by.WalletAddress}:
	default:
		v.log.Warn("Verified event buffer full, dropping notification",
			zap.String("campaign_id", campaignID.String()),
			zap.Int("milestone_index", milestoneIndex))
	}
	return nil
}

// Reject turns down a claimed milestone, recording the reason for
// audit. A rejected milestone can be claimed again. Only a provider or
// witness may reject.
func (v *Verifier) Reject(campaignID uuid.UUID, milestoneIndex int, by identity.Identity, reason string) error {
	if by.Role != identity.RoleProvider && by.Role != identity.RoleWitness {
		return ErrVerifierRole
	}

	err := v.store.Update(campaignID, func(c *escrow.Campaign) error {
		if milestoneIndex < 0 || milestoneIndex >= len(c.Milestones) {
			return escrow.ErrMilestoneNotFound
		}

		m := &c.Milestones[milestoneIndex]
		if m.State != escrow.MilestoneClaimed {
			return ErrNotClaimed
		}

		m.State = escrow.MilestoneRejected
		m.RejectReason = reason
		m.ClaimedBy = ""
		m.ClaimedAt = time.Time{}
		return nil
	})
	if err != nil {
		return err
	}

	v.log.Info("Milestone claim rejected",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("milestone_index", milestoneIndex),
		zap.String("rejected_by", by.WalletAddress),
		zap.String("reason", reason))
	return nil
}
