package verifier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubuntu-health/sponsorship-api/internal/escrow"
	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/ledger"
	"github.com/ubuntu-health/sponsorship-api/internal/notifications"
)

type confirmingGateway struct {
	mu  sync.Mutex
	seq int
}

func (g *confirmingGateway) SubmitTransfer(_ context.Context, req ledger.TransferRequest) (*ledger.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return &ledger.Transfer{ID: fmt.Sprintf("tx-%d", g.seq), State: ledger.TransferStateConfirmed, Amount: req.Amount}, nil
}

func (g *confirmingGateway) PollConfirmation(_ context.Context, id string) (*ledger.Transfer, error) {
	return &ledger.Transfer{ID: id, State: ledger.TransferStateConfirmed}, nil
}

func (g *confirmingGateway) QueryBalance(context.Context, string) (int64, error) { return 0, nil }

var (
	patient  = identity.Identity{WalletAddress: "patientWallet", Role: identity.RolePatient, Verified: true}
	witness  = identity.Identity{WalletAddress: "witnessWallet", Role: identity.RoleWitness, Verified: true}
	provider = identity.Identity{WalletAddress: "providerWallet", Role: identity.RoleProvider, Verified: true}
	sponsor  = identity.Identity{WalletAddress: "sponsorWallet", Role: identity.RoleSponsor, Verified: true}
)

func newFundedFixture(t *testing.T) (*escrow.Service, *Verifier, uuid.UUID) {
	t.Helper()
	s := escrow.NewService(&confirmingGateway{}, notifications.NoopNotifier{}, "CUSTODY", "")
	v := New(s)

	campaign, err := s.CreateCampaign(escrow.CreateCampaignParams{
		PatientWallet: patient.WalletAddress,
		TargetAmount:  1000,
		Milestones: []escrow.MilestoneParams{
			{Description: "Consultation", ReleasePercentage: 50},
			{Description: "Treatment", ReleasePercentage: 50},
		},
	})
	require.NoError(t, err)

	_, err = s.CommitFunds(context.Background(), campaign.ID, escrow.CommitFundsParams{
		SponsorWallet: sponsor.WalletAddress,
		Amount:        1000,
	})
	require.NoError(t, err)
	return s, v, campaign.ID
}

func milestoneState(t *testing.T, s *escrow.Service, campaignID uuid.UUID, index int) escrow.Milestone {
	t.Helper()
	campaign, err := s.Get(campaignID)
	require.NoError(t, err)
	return campaign.Milestones[index]
}

func TestClaim(t *testing.T) {
	s, v, campaignID := newFundedFixture(t)

	require.NoError(t, v.Claim(campaignID, 0, patient))

	m := milestoneState(t, s, campaignID, 0)
	assert.Equal(t, escrow.MilestoneClaimed, m.State)
	assert.Equal(t, patient.WalletAddress, m.ClaimedBy)

	// First claim moves the campaign into progress.
	campaign, err := s.Get(campaignID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusInProgress, campaign.Status)

	// A claimed milestone cannot be claimed again.
	assert.ErrorIs(t, v.Claim(campaignID, 0, provider), ErrNotClaimable)

	// Unknown milestone index.
	assert.ErrorIs(t, v.Claim(campaignID, 9, patient), escrow.ErrMilestoneNotFound)
}

func TestClaim_RequiresFundedCampaign(t *testing.T) {
	s := escrow.NewService(&confirmingGateway{}, notifications.NoopNotifier{}, "CUSTODY", "")
	v := New(s)

	campaign, err := s.CreateCampaign(escrow.CreateCampaignParams{
		PatientWallet: patient.WalletAddress,
		TargetAmount:  1000,
		Milestones:    []escrow.MilestoneParams{{ReleasePercentage: 100}},
	})
	require.NoError(t, err)

	// Still Open: nothing to claim against.
	assert.ErrorIs(t, v.Claim(campaign.ID, 0, patient), ErrNotClaimable)
}

func TestVerify(t *testing.T) {
	s, v, campaignID := newFundedFixture(t)
	require.NoError(t, v.Claim(campaignID, 0, patient))

	require.NoError(t, v.Verify(campaignID, 0, witness, "sha256:abc"))

	m := milestoneState(t, s, campaignID, 0)
	assert.Equal(t, escrow.MilestoneVerified, m.State)
	assert.Equal(t, witness.WalletAddress, m.VerifiedBy)
	assert.Equal(t, "sha256:abc", m.EvidenceHash)

	// Verification emits an event for the release path.
	select {
	case event := <-v.Events():
		assert.Equal(t, campaignID, event.CampaignID)
		assert.Equal(t, 0, event.MilestoneIndex)
		assert.Equal(t, witness.WalletAddress, event.VerifiedBy)
	case <-time.After(time.Second):
		t.Fatal("expected a verified event")
	}
}

func TestVerify_Rejections(t *testing.T) {
	_, v, campaignID := newFundedFixture(t)

	// Nothing claimed yet.
	assert.ErrorIs(t, v.Verify(campaignID, 0, witness, ""), ErrNotClaimed)

	require.NoError(t, v.Claim(campaignID, 0, provider))

	// Wrong role.
	assert.ErrorIs(t, v.Verify(campaignID, 0, patient, ""), ErrVerifierRole)
	assert.ErrorIs(t, v.Verify(campaignID, 0, sponsor, ""), ErrVerifierRole)

	// The claimant cannot verify their own claim, whatever their role.
	assert.ErrorIs(t, v.Verify(campaignID, 0, provider, ""), ErrConflictOfInterest)

	// A different provider can.
	otherProvider := identity.Identity{WalletAddress: "otherProvider", Role: identity.RoleProvider}
	assert.NoError(t, v.Verify(campaignID, 0, otherProvider, ""))
}

func TestReject(t *testing.T) {
	s, v, campaignID := newFundedFixture(t)
	require.NoError(t, v.Claim(campaignID, 0, patient))

	// Only provider or witness may reject.
	assert.ErrorIs(t, v.Reject(campaignID, 0, sponsor, "incomplete"), ErrVerifierRole)

	require.NoError(t, v.Reject(campaignID, 0, witness, "incomplete records"))

	m := milestoneState(t, s, campaignID, 0)
	assert.Equal(t, escrow.MilestoneRejected, m.State)
	assert.Equal(t, "incomplete records", m.RejectReason)
	assert.Empty(t, m.ClaimedBy)

	// Nothing claimed anymore, so there is nothing to verify or reject.
	assert.ErrorIs(t, v.Verify(campaignID, 0, witness, ""), ErrNotClaimed)
	assert.ErrorIs(t, v.Reject(campaignID, 0, witness, "again"), ErrNotClaimed)

	// A rejected milestone can be claimed again, clearing the reason.
	require.NoError(t, v.Claim(campaignID, 0, patient))
	m = milestoneState(t, s, campaignID, 0)
	assert.Equal(t, escrow.MilestoneClaimed, m.State)
	assert.Empty(t, m.RejectReason)
}

func TestVerifiedMilestoneIsReleasable(t *testing.T) {
	s, v, campaignID := newFundedFixture(t)

	require.NoError(t, v.Claim(campaignID, 0, patient))
	require.NoError(t, v.Verify(campaignID, 0, witness, "sha256:evidence"))

	record, err := s.ReleaseMilestone(context.Background(), campaignID, 0, provider)
	require.NoError(t, err)
	assert.Equal(t, int64(500), record.Amount)

	// Verification alone never moves funds; release did, exactly once.
	_, err = s.ReleaseMilestone(context.Background(), campaignID, 0, provider)
	assert.ErrorIs(t, err, escrow.ErrAlreadyReleased)
}
