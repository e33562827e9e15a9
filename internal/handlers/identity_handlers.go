package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ubuntu-health/sponsorship-api/internal/identity"
)

// IdentityHandler serves the admin-only identity registry endpoints.
type IdentityHandler struct {
	common *CommonServices
}

// NewIdentityHandler creates a new IdentityHandler.
func NewIdentityHandler(common *CommonServices) *IdentityHandler {
	return &IdentityHandler{common: common}
}

// SetRoleRequest is the body of the role assignment endpoint.
type SetRoleRequest struct {
	Role identity.Role `json:"userType" binding:"required"`
}

// SetRole assigns a platform role to a wallet.
func (h *IdentityHandler) SetRole(c *gin.Context) {
	wallet := c.Param("wallet")

	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Role is required", err)
		return
	}
	if !identity.ValidRole(req.Role) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unknown role", Code: "INVALID_ROLE"})
		return
	}

	id := h.common.Registry.SetRole(wallet, req.Role)
	sendSuccess(c, http.StatusOK, id)
}

// SetVerifiedRequest is the body of the verification flag endpoint.
type SetVerifiedRequest struct {
	Verified *bool `json:"isVerified" binding:"required"`
}

// SetVerified marks a wallet's platform verification status.
func (h *IdentityHandler) SetVerified(c *gin.Context) {
	wallet := c.Param("wallet")

	var req SetVerifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Verification flag is required", err)
		return
	}

	id := h.common.Registry.SetVerified(wallet, *req.Verified)
	sendSuccess(c, http.StatusOK, id)
}
