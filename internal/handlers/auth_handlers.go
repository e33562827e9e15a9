package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
)

// AuthHandler serves the wallet sign-in handshake.
type AuthHandler struct {
	common *CommonServices
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(common *CommonServices) *AuthHandler {
	return &AuthHandler{common: common}
}

// ChallengeRequest is the body of POST /auth/challenge.
type ChallengeRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// ChallengeResponse carries the statement for the wallet to sign.
type ChallengeResponse struct {
	Challenge     string `json:"challenge"`
	ExpiresIn     int    `json:"expiresIn"`
	WalletAddress string `json:"walletAddress"`
}

// RequestChallenge issues a sign-in challenge for a wallet address.
func (h *AuthHandler) RequestChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Wallet address required", "code": "MISSING_WALLET"})
		return
	}

	challenge, err := h.common.Authenticator.IssueChallenge(req.WalletAddress)
	if err != nil {
		respondError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, ChallengeResponse{
		Challenge:     challenge.Text,
		ExpiresIn:     challenge.ExpiresIn,
		WalletAddress: req.WalletAddress,
	})
}

// VerifyRequest is the body of POST /auth/verify.
type VerifyRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
	Message       string `json:"message" binding:"required"`
}

// VerifyAndAuthenticate checks the signed challenge and mints a bearer
// credential.
func (h *AuthHandler) VerifyAndAuthenticate(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: walletAddress, signature, message",
			"code":  "MISSING_FIELDS",
		})
		return
	}

	token, id, err := h.common.Authenticator.VerifyAndAuthenticate(req.WalletAddress, req.Message, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"token":     token,
		"user":      id,
		"expiresIn": h.common.Authenticator.Tokens().TTLSeconds(),
	})
}

// CurrentUser returns the authenticated identity for the credential on
// the request.
func (h *AuthHandler) CurrentUser(c *gin.Context) {
	id, ok := auth.CurrentIdentity(c)
	if !ok {
		respondError(c, auth.ErrNotAuthenticated)
		return
	}
	sendSuccess(c, http.StatusOK, id)
}
