package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
)

// MilestoneHandler serves the milestone claim, review and release
// endpoints.
type MilestoneHandler struct {
	common *CommonServices
}

// NewMilestoneHandler creates a new MilestoneHandler.
func NewMilestoneHandler(common *CommonServices) *MilestoneHandler {
	return &MilestoneHandler{common: common}
}

func milestoneParams(c *gin.Context) (uuid.UUID, int, bool) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid campaign ID format", err)
		return uuid.Nil, 0, false
	}
	index, err := strconv.Atoi(c.Param("milestone_index"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid milestone index", err)
		return uuid.Nil, 0, false
	}
	return campaignID, index, true
}

// ClaimMilestone records a completion claim for a milestone.
func (h *MilestoneHandler) ClaimMilestone(c *gin.Context) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		respondError(c, auth.ErrNotAuthenticated)
		return
	}
	campaignID, index, ok := milestoneParams(c)
	if !ok {
		return
	}

	if err := h.common.Verifier.Claim(campaignID, index, id); err != nil {
		respondError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"message": "milestone claimed"})
}

// VerifyMilestoneRequest is the body of the verification endpoint. The
// evidence hash pins the reviewed evidence for audit.
type VerifyMilestoneRequest struct {
	EvidenceHash string `json:"evidenceHash"`
}

// VerifyMilestone confirms a claimed milestone after independent
// review.
func (h *MilestoneHandler) VerifyMilestone(c *gin.Context) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		respondError(c, auth.ErrNotAuthenticated)
		return
	}
	campaignID, index, ok := milestoneParams(c)
	if !ok {
		return
	}

	// Evidence hash is optional, so an empty body is fine.
	var req VerifyMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		sendError(c, http.StatusBadRequest, "Invalid verification request", err)
		return
	}

	if err := h.common.Verifier.Verify(campaignID, index, id, req.EvidenceHash); err != nil {
		respondError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"message": "milestone verified"})
}

// RejectMilestoneRequest is the body of the rejection endpoint.
type RejectMilestoneRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectMilestone turns down a completion claim.
func (h *MilestoneHandler) RejectMilestone(c *gin.Context) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		respondError(c, auth.ErrNotAuthenticated)
		return
	}
	campaignID, index, ok := milestoneParams(c)
	if !ok {
		return
	}

	var req RejectMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Rejection reason required", err)
		return
	}

	if err := h.common.Verifier.Reject(campaignID, index, id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"message": "milestone claim rejected"})
}

// ReleaseMilestone pays out a verified milestone to the patient.
func (h *MilestoneHandler) ReleaseMilestone(c *gin.Context) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		respondError(c, auth.ErrNotAuthenticated)
		return
	}
	campaignID, index, ok := milestoneParams(c)
	if !ok {
		return
	}

	record, err := h.common.Escrow.ReleaseMilestone(c.Request.Context(), campaignID, index, id)
	if err != nil {
		respondError(c, err)
		return
	}
	sendSuccess(c, http.StatusOK, record)
}
