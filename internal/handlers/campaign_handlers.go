package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
	"github.com/ubuntu-health/sponsorship-api/internal/escrow"
)

// CampaignHandler serves the campaign lifecycle endpoints.
type CampaignHandler struct {
	common *CommonServices
}

// NewCampaignHandler creates a new CampaignHandler.
func NewCampaignHandler(common *CommonServices) *CampaignHandler {
	return &CampaignHandler{common: common}
}

// CreateCampaignRequest is the body of POST /campaigns.
type CreateCampaignRequest struct {
	TargetAmount      int64                    `json:"targetAmount" binding:"required"`
	FundingWindowDays int                      `json:"fundingWindowDays"`
	Milestones        []escrow.MilestoneParams `json:"milestones" binding:"required"`
}

// CreateCampaign registers a treatment-funding campaign for the
// authenticated patient.
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		respondError(c, auth.ErrNotAuthenticated)
		return
	}

	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid campaign request", err)
		return
	}

	campaign, err := h.common.Escrow.CreateCampaign(escrow.CreateCampaignParams{
		PatientWallet: id.WalletAddress,
		TargetAmount:  req.TargetAmount,
		FundingWindow: time.Duration(req.FundingWindowDays) * 24 * time.Hour,
		Milestones:    req.Milestones,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	sendSuccess(c, http.StatusCreated, campaign)
}

// ListCampaigns returns all campaigns.
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	sendList(c, h.common.Escrow.List())
}

// GetCampaign returns a single campaign by id.
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid campaign ID format", err)
		return
	}

	campaign, err := h.common.Escrow.Get(campaignID)
	if err != nil {
		respondError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, campaign)
}

// CommitFundsRequest is the body of POST /campaigns/:id/commitments.
// AttemptID is optional; clients resubmit it to retry a timed-out
// commit without risking a duplicate transfer.
type CommitFundsRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	AttemptID string `json:"attemptId"`
}

// CommitFunds records a sponsor's commitment after moving the funds
// into campaign custody on the ledger.
func (h *CampaignHandler) CommitFunds(c *gin.Context) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		respondError(c, auth.ErrNotAuthenticated)
		return
	}

	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid campaign ID format", err)
		return
	}

	var req CommitFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid commitment request", err)
		return
	}

	commitment, err := h.common.Escrow.CommitFunds(c.Request.Context(), campaignID, escrow.CommitFundsParams{
		SponsorWallet: id.WalletAddress,
		Amount:        req.Amount,
		AttemptID:     req.AttemptID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	sendSuccess(c, http.StatusCreated, commitment)
}

// ExpireCampaign expires a campaign whose funding window lapsed and
// queues sponsor refunds. Admin only; safe to re-run.
func (h *CampaignHandler) ExpireCampaign(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid campaign ID format", err)
		return
	}

	if err := h.common.Escrow.ExpireOrRefund(c.Request.Context(), campaignID); err != nil {
		respondError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"message": "campaign expiry processed"})
}
