package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
	"github.com/ubuntu-health/sponsorship-api/internal/escrow"
	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/ledger"
	"github.com/ubuntu-health/sponsorship-api/internal/logger"
	"github.com/ubuntu-health/sponsorship-api/internal/verifier"
)

// CommonServices holds the shared dependencies used across handlers.
type CommonServices struct {
	Escrow        *escrow.Service
	Verifier      *verifier.Verifier
	Authenticator *auth.Authenticator
	Registry      identity.Registry
}

// NewCommonServices creates a new instance of CommonServices.
func NewCommonServices(escrowService *escrow.Service, milestoneVerifier *verifier.Verifier, authenticator *auth.Authenticator, registry identity.Registry) *CommonServices {
	return &CommonServices{
		Escrow:        escrowService,
		Verifier:      milestoneVerifier,
		Authenticator: authenticator,
		Registry:      registry,
	}
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// sendError logs the failure and sends a JSON error response
func sendError(c *gin.Context, statusCode int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	c.JSON(statusCode, ErrorResponse{Error: message})
}

// respondError maps component errors to HTTP responses with their
// stable machine-readable codes. Unexpected errors are logged with
// context and surfaced as a generic failure.
func respondError(c *gin.Context, err error) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		c.JSON(authErr.Status, ErrorResponse{Error: authErr.Message, Code: authErr.Code})
		return
	}

	var escrowErr *escrow.Error
	if errors.As(err, &escrowErr) {
		c.JSON(escrowErr.Status, ErrorResponse{Error: escrowErr.Message, Code: escrowErr.Code})
		return
	}

	var verifierErr *verifier.Error
	if errors.As(err, &verifierErr) {
		c.JSON(verifierErr.Status, ErrorResponse{Error: verifierErr.Message, Code: verifierErr.Code})
		return
	}

	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		status := http.StatusBadGateway
		if ledgerErr == ledger.ErrTimeout {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{
			"error":     ledgerErr.Message,
			"code":      ledgerErr.Code,
			"retryable": ledgerErr.Retryable,
		})
		return
	}

	sendError(c, http.StatusInternalServerError, "Internal server error", err)
}

// sendSuccess sends a success response with the given payload
func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// sendList sends a list response
func sendList(c *gin.Context, items interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   items,
	})
}
