package escrow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/ledger"
	"github.com/ubuntu-health/sponsorship-api/internal/logger"
	"github.com/ubuntu-health/sponsorship-api/internal/notifications"
)

// defaultFundingWindow is how long a campaign may sit Open before it
// can be expired and refunded.
const defaultFundingWindow = 30 * 24 * time.Hour

// CampaignStore is the serialized view of campaign state shared with
// the milestone verifier. Update runs fn under the campaign's lock, so
// all mutations to one campaign are serialized while different
// campaigns proceed independently.
type CampaignStore interface {
	Update(campaignID uuid.UUID, fn func(*Campaign) error) error
	Get(campaignID uuid.UUID) (Campaign, error)
}

// releaseRegistry is the append-only authority on released milestones.
// The check and the insert happen under one lock, giving at-most-once
// release semantics regardless of who calls in.
type releaseRegistry struct {
	mu      sync.Mutex
	records map[string]*ReleaseRecord
}

func newReleaseRegistry() *releaseRegistry {
	return &releaseRegistry{records: make(map[string]*ReleaseRecord)}
}

func releaseKey(campaignID uuid.UUID, milestoneIndex int) string {
	return fmt.Sprintf("%s/%d", campaignID, milestoneIndex)
}

// insert atomically records the release. Returns false if a record for
// the milestone already exists.
func (r *releaseRegistry) insert(rec *ReleaseRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := releaseKey(rec.CampaignID, rec.MilestoneIndex)
	if _, exists := r.records[key]; exists {
		return false
	}
	r.records[key] = rec
	return true
}

func (r *releaseRegistry) exists(campaignID uuid.UUID, milestoneIndex int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[releaseKey(campaignID, milestoneIndex)]
	return ok
}

// Service owns campaign state and enforces the escrow invariants:
// total releases never exceed committed funds and each milestone
// releases at most once. All money movement goes through the ledger
// gateway; nothing is recorded unless the ledger confirms.
type Service struct {
	gateway        ledger.Gateway
	notifier       notifications.Notifier
	custodyAccount string
	adminWallet    string
	fundingWindow  time.Duration
	log            *zap.Logger
	now            func() time.Time

	mu        sync.RWMutex
	campaigns map[uuid.UUID]*Campaign
	locks     map[uuid.UUID]*sync.Mutex

	releases *releaseRegistry
}

// ServiceOption customizes the escrow service.
type ServiceOption func(*Service)

// WithFundingWindow overrides the default campaign funding window.
func WithFundingWindow(d time.Duration) ServiceOption {
	return func(s *Service) { s.fundingWindow = d }
}

// NewService creates the escrow service. custodyAccount is the
// ledger-side holding point for committed funds; adminWallet is the
// platform identity allowed to authorize releases alongside providers.
func NewService(gateway ledger.Gateway, notifier notifications.Notifier, custodyAccount, adminWallet string, options ...ServiceOption) *Service {
	s := &Service{
		gateway:        gateway,
		notifier:       notifier,
		custodyAccount: custodyAccount,
		adminWallet:    adminWallet,
		fundingWindow:  defaultFundingWindow,
		log:            logger.Log,
		now:            time.Now,
		campaigns:      make(map[uuid.UUID]*Campaign),
		locks:          make(map[uuid.UUID]*sync.Mutex),
		releases:       newReleaseRegistry(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// lockFor returns the serialization mutex for a campaign, creating it
// on first use.
func (s *Service) lockFor(campaignID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[campaignID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[campaignID] = l
	}
	return l
}

// Update implements CampaignStore.
func (s *Service) Update(campaignID uuid.UUID, fn func(*Campaign) error) error {
	l := s.lockFor(campaignID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	campaign, ok := s.campaigns[campaignID]
	s.mu.RUnlock()
	if !ok {
		return ErrCampaignNotFound
	}
	return fn(campaign)
}

// Get implements CampaignStore. The returned campaign is a deep copy.
func (s *Service) Get(campaignID uuid.UUID) (Campaign, error) {
	l := s.lockFor(campaignID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	campaign, ok := s.campaigns[campaignID]
	s.mu.RUnlock()
	if !ok {
		return Campaign{}, ErrCampaignNotFound
	}
	return campaign.clone(), nil
}

// List returns copies of all campaigns.
func (s *Service) List() []Campaign {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.campaigns))
	for id := range s.campaigns {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]Campaign, 0, len(ids))
	for _, id := range ids {
		if c, err := s.Get(id); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// CreateCampaign registers a new campaign. Milestone percentages must
// each be positive and sum to exactly 100.
func (s *Service) CreateCampaign(params CreateCampaignParams) (Campaign, error) {
	if params.TargetAmount <= 0 {
		return Campaign{}, ErrInvalidTarget
	}
	if len(params.Milestones) == 0 {
		return Campaign{}, ErrInvalidMilestones
	}

	total := 0
	for _, m := range params.Milestones {
		if m.ReleasePercentage <= 0 {
			return Campaign{}, ErrInvalidMilestones
		}
		total += m.ReleasePercentage
	}
	if total != 100 {
		return Campaign{}, ErrInvalidMilestones
	}

	window := params.FundingWindow
	if window <= 0 {
		window = s.fundingWindow
	}

	now := s.now()
	campaign := &Campaign{
		ID:              uuid.New(),
		PatientWallet:   params.PatientWallet,
		TargetAmount:    params.TargetAmount,
		Status:          StatusOpen,
		CreatedAt:       now,
		FundingDeadline: now.Add(window),
	}
	for i, m := range params.Milestones {
		campaign.Milestones = append(campaign.Milestones, Milestone{
			Index:             i,
			Description:       m.Description,
			ReleasePercentage: m.ReleasePercentage,
			State:             MilestonePending,
		})
	}

	s.mu.Lock()
	s.campaigns[campaign.ID] = campaign
	s.mu.Unlock()

	s.log.Info("Campaign created",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("patient_wallet", params.PatientWallet),
		zap.Int64("target_amount", params.TargetAmount),
		zap.Int("milestones", len(campaign.Milestones)))

	return campaign.clone(), nil
}

// CommitFunds moves a sponsor's funds into campaign custody via the
// ledger and records the commitment. On any ledger failure nothing is
// recorded, so retrying with the same attempt ID is always safe.
func (s *Service) CommitFunds(ctx context.Context, campaignID uuid.UUID, params CommitFundsParams) (Commitment, error) {
	if params.Amount <= 0 {
		return Commitment{}, ErrInvalidAmount
	}

	l := s.lockFor(campaignID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	campaign, ok := s.campaigns[campaignID]
	s.mu.RUnlock()
	if !ok {
		return Commitment{}, ErrCampaignNotFound
	}

	if campaign.Status != StatusOpen && campaign.Status != StatusFunded {
		return Commitment{}, ErrCampaignNotOpen
	}
	if campaign.CommittedAmount+params.Amount > campaign.TargetAmount {
		return Commitment{}, ErrExceedsTarget
	}

	attemptID := params.AttemptID
	if attemptID == "" {
		attemptID = uuid.NewString()
	}

	transfer, err := s.gateway.SubmitTransfer(ctx, ledger.TransferRequest{
		IdempotencyKey:     fmt.Sprintf("commit:%s:%s", campaignID, attemptID),
		SourceAccount:      params.SponsorWallet,
		DestinationAccount: s.custodyAccount,
		Amount:             params.Amount,
		Reference:          campaignID.String(),
	})
	if err != nil {
		// No partial commit without a confirmed transfer reference.
		return Commitment{}, pkgerrors.WithMessage(err, "commit transfer")
	}

	commitment := Commitment{
		ID:            uuid.New(),
		CampaignID:    campaignID,
		SponsorWallet: params.SponsorWallet,
		Amount:        params.Amount,
		LedgerTxRef:   transfer.ID,
		CreatedAt:     s.now(),
	}
	campaign.Commitments = append(campaign.Commitments, commitment)
	campaign.CommittedAmount += params.Amount

	if campaign.CommittedAmount >= campaign.TargetAmount {
		campaign.Status = StatusFunded
		s.notifier.Notify(notifications.Event{
			Type:       notifications.EventCampaignFunded,
			CampaignID: campaignID.String(),
			Amount:     campaign.CommittedAmount,
			Detail:     "campaign reached its funding target",
		})
	}

	s.log.Info("Funds committed",
		zap.String("campaign_id", campaignID.String()),
		zap.String("commitment_id", commitment.ID.String()),
		zap.String("sponsor_wallet", params.SponsorWallet),
		zap.Int64("amount", params.Amount),
		zap.String("ledger_tx_ref", commitment.LedgerTxRef))

	return commitment, nil
}

// canAuthorizeRelease checks precondition (c) of a release: the
// authorizer holds the provider role or is the platform admin identity.
func (s *Service) canAuthorizeRelease(authorizer identity.Identity) bool {
	if authorizer.Role == identity.RoleProvider || authorizer.Role == identity.RoleAdmin {
		return true
	}
	return s.adminWallet != "" && authorizer.WalletAddress == s.adminWallet
}

// ReleaseMilestone pays out a verified milestone's share of the
// committed funds to the patient. Preconditions are checked in order:
// verified state, no existing release record, authorized releaser.
// The release record is written only after the ledger confirms, so a
// failed transfer leaves the milestone Verified and retryable.
func (s *Service) ReleaseMilestone(ctx context.Context, campaignID uuid.UUID, milestoneIndex int, authorizer identity.Identity) (ReleaseRecord, error) {
	l := s.lockFor(campaignID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	campaign, ok := s.campaigns[campaignID]
	s.mu.RUnlock()
	if !ok {
		return ReleaseRecord{}, ErrCampaignNotFound
	}
	if milestoneIndex < 0 || milestoneIndex >= len(campaign.Milestones) {
		return ReleaseRecord{}, ErrMilestoneNotFound
	}

	milestone := &campaign.Milestones[milestoneIndex]
	switch milestone.State {
	case MilestoneVerified:
		// proceed
	case MilestoneReleased:
		return ReleaseRecord{}, ErrAlreadyReleased
	default:
		return ReleaseRecord{}, ErrMilestoneNotVerified
	}

	if s.releases.exists(campaignID, milestoneIndex) {
		return ReleaseRecord{}, ErrAlreadyReleased
	}

	if !s.canAuthorizeRelease(authorizer) {
		return ReleaseRecord{}, ErrUnauthorized
	}

	amount := campaign.CommittedAmount * int64(milestone.ReleasePercentage) / 100

	transfer, err := s.gateway.SubmitTransfer(ctx, ledger.TransferRequest{
		IdempotencyKey:     fmt.Sprintf("release:%s:%d", campaignID, milestoneIndex),
		SourceAccount:      s.custodyAccount,
		DestinationAccount: campaign.PatientWallet,
		Amount:             amount,
		Reference:          fmt.Sprintf("%s/%d", campaignID, milestoneIndex),
	})
	if err != nil {
		// Milestone stays Verified; no record is written, retry is safe.
		return ReleaseRecord{}, pkgerrors.WithMessage(err, "release transfer")
	}

	record := ReleaseRecord{
		CampaignID:     campaignID,
		MilestoneIndex: milestoneIndex,
		Amount:         amount,
		LedgerTxRef:    transfer.ID,
		AuthorizedBy:   authorizer.WalletAddress,
		ReleasedAt:     s.now(),
	}
	if !s.releases.insert(&record) {
		return ReleaseRecord{}, ErrAlreadyReleased
	}

	milestone.State = MilestoneReleased
	campaign.Releases = append(campaign.Releases, record)

	allReleased := true
	for i := range campaign.Milestones {
		if campaign.Milestones[i].State != MilestoneReleased {
			allReleased = false
			break
		}
	}
	if allReleased {
		campaign.Status = StatusCompleted
		s.notifier.Notify(notifications.Event{
			Type:       notifications.EventCampaignCompleted,
			CampaignID: campaignID.String(),
			Amount:     campaign.CommittedAmount,
			Detail:     "all milestones released",
		})
	}

	s.notifier.Notify(notifications.Event{
		Type:           notifications.EventMilestoneReleased,
		CampaignID:     campaignID.String(),
		MilestoneIndex: milestoneIndex,
		Amount:         amount,
		Detail:         fmt.Sprintf("released to %s", campaign.PatientWallet),
	})

	s.log.Info("Milestone released",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("milestone_index", milestoneIndex),
		zap.Int64("amount", amount),
		zap.String("authorized_by", authorizer.WalletAddress),
		zap.String("ledger_tx_ref", record.LedgerTxRef))

	return record, nil
}

// ExpireOrRefund expires a campaign whose funding window lapsed before
// it reached Funded and queues the return of every confirmed
// commitment to its sponsor. Refund transfers use idempotency keys
// derived from the commitment, so a partially failed pass can be rerun.
func (s *Service) ExpireOrRefund(ctx context.Context, campaignID uuid.UUID) error {
	l := s.lockFor(campaignID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	campaign, ok := s.campaigns[campaignID]
	s.mu.RUnlock()
	if !ok {
		return ErrCampaignNotFound
	}

	switch campaign.Status {
	case StatusOpen:
		if s.now().Before(campaign.FundingDeadline) {
			return ErrNotExpirable
		}
		campaign.Status = StatusExpired
		s.notifier.Notify(notifications.Event{
			Type:       notifications.EventCampaignExpired,
			CampaignID: campaignID.String(),
			Detail:     "funding window lapsed before target was reached",
		})
	case StatusExpired:
		// Re-run of the refund pass.
	default:
		return ErrNotExpirable
	}

	for i := range campaign.Commitments {
		commitment := &campaign.Commitments[i]
		if commitment.Refunded {
			continue
		}

		_, err := s.gateway.SubmitTransfer(ctx, ledger.TransferRequest{
			IdempotencyKey:     fmt.Sprintf("refund:%s", commitment.ID),
			SourceAccount:      s.custodyAccount,
			DestinationAccount: commitment.SponsorWallet,
			Amount:             commitment.Amount,
			Reference:          fmt.Sprintf("refund/%s", campaignID),
		})
		if err != nil {
			// Left queued; the next expiry pass retries it.
			s.log.Warn("Refund transfer failed, leaving queued",
				zap.String("campaign_id", campaignID.String()),
				zap.String("commitment_id", commitment.ID.String()),
				zap.Error(err))
			continue
		}
		commitment.Refunded = true
	}

	return nil
}

// OnMilestoneVerified is the escrow side of the verifier's
// "milestone verified" event. It re-validates state itself instead of
// trusting the event, so a stray or duplicate notification cannot
// corrupt anything; it never moves money.
func (s *Service) OnMilestoneVerified(campaignID uuid.UUID, milestoneIndex int) {
	campaign, err := s.Get(campaignID)
	if err != nil {
		s.log.Warn("Verified event for unknown campaign",
			zap.String("campaign_id", campaignID.String()))
		return
	}
	if milestoneIndex < 0 || milestoneIndex >= len(campaign.Milestones) {
		return
	}
	if campaign.Milestones[milestoneIndex].State != MilestoneVerified {
		s.log.Warn("Verified event does not match milestone state",
			zap.String("campaign_id", campaignID.String()),
			zap.Int("milestone_index", milestoneIndex),
			zap.String("state", string(campaign.Milestones[milestoneIndex].State)))
		return
	}

	s.notifier.Notify(notifications.Event{
		Type:           notifications.EventMilestoneVerified,
		CampaignID:     campaignID.String(),
		MilestoneIndex: milestoneIndex,
		Detail:         "milestone verified and eligible for release",
	})

	s.log.Info("Milestone eligible for release",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("milestone_index", milestoneIndex))
}
