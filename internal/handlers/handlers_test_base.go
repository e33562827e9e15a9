package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
	"github.com/ubuntu-health/sponsorship-api/internal/escrow"
	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/ledger"
	"github.com/ubuntu-health/sponsorship-api/internal/notifications"
	"github.com/ubuntu-health/sponsorship-api/internal/verifier"
)

// stubGateway confirms every transfer unless primed with an error.
type stubGateway struct {
	mu       sync.Mutex
	failWith error
	seq      int
}

func (g *stubGateway) SubmitTransfer(_ context.Context, req ledger.TransferRequest) (*ledger.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	g.seq++
	return &ledger.Transfer{ID: fmt.Sprintf("tx-%d", g.seq), State: ledger.TransferStateConfirmed, Amount: req.Amount}, nil
}

func (g *stubGateway) PollConfirmation(_ context.Context, id string) (*ledger.Transfer, error) {
	return &ledger.Transfer{ID: id, State: ledger.TransferStateConfirmed}, nil
}

func (g *stubGateway) QueryBalance(context.Context, string) (int64, error) { return 0, nil }

// testEnv is a fully wired in-memory service stack for handler tests.
type testEnv struct {
	router   *gin.Engine
	common   *CommonServices
	gateway  *stubGateway
	registry *identity.MemoryRegistry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := identity.NewMemoryRegistry()
	authenticator := auth.NewAuthenticator(
		auth.NewChallengeService(5*time.Minute),
		auth.NewEd25519Verifier(),
		auth.NewTokenService("handler-test-secret", time.Hour),
		registry,
	)

	gateway := &stubGateway{}
	escrowService := escrow.NewService(gateway, notifications.NoopNotifier{}, "CUSTODY", "adminWallet")
	milestoneVerifier := verifier.New(escrowService)

	common := NewCommonServices(escrowService, milestoneVerifier, authenticator, registry)

	router := gin.New()
	campaignHandler := NewCampaignHandler(common)
	milestoneHandler := NewMilestoneHandler(common)
	authHandler := NewAuthHandler(common)
	identityHandler := NewIdentityHandler(common)

	router.POST("/auth/challenge", authHandler.RequestChallenge)
	router.POST("/auth/verify", authHandler.VerifyAndAuthenticate)

	protected := router.Group("/", authenticator.Middleware())
	protected.GET("/auth/me", authHandler.CurrentUser)
	protected.POST("/campaigns", campaignHandler.CreateCampaign)
	protected.GET("/campaigns", campaignHandler.ListCampaigns)
	protected.GET("/campaigns/:campaign_id", campaignHandler.GetCampaign)
	protected.POST("/campaigns/:campaign_id/commitments", campaignHandler.CommitFunds)
	protected.POST("/campaigns/:campaign_id/milestones/:milestone_index/claim", milestoneHandler.ClaimMilestone)
	protected.POST("/campaigns/:campaign_id/milestones/:milestone_index/verify", milestoneHandler.VerifyMilestone)
	protected.POST("/campaigns/:campaign_id/milestones/:milestone_index/reject", milestoneHandler.RejectMilestone)
	protected.POST("/campaigns/:campaign_id/milestones/:milestone_index/release", milestoneHandler.ReleaseMilestone)

	admin := protected.Group("/admin", auth.RequireRoles(identity.RoleAdmin))
	admin.PUT("/identities/:wallet/role", identityHandler.SetRole)
	admin.PUT("/identities/:wallet/verified", identityHandler.SetVerified)

	return &testEnv{router: router, common: common, gateway: gateway, registry: registry}
}

// tokenFor mints a credential for an identity, registering it first so
// later lookups agree with the claims.
func (e *testEnv) tokenFor(t *testing.T, wallet string, role identity.Role, verified bool) string {
	t.Helper()
	e.registry.SetRole(wallet, role)
	e.registry.SetVerified(wallet, verified)
	token, err := e.common.Authenticator.Tokens().Mint(identity.Identity{
		WalletAddress: wallet,
		Role:          role,
		Verified:      verified,
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
}

func (e *testEnv) createCampaign(t *testing.T, patientToken string) escrow.Campaign {
	t.Helper()
	w := e.do(t, http.MethodPost, "/campaigns", patientToken, CreateCampaignRequest{
		TargetAmount: 1000,
		Milestones: []escrow.MilestoneParams{
			{Description: "Consultation", ReleasePercentage: 40},
			{Description: "Treatment", ReleasePercentage: 60},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var campaign escrow.Campaign
	decodeJSON(t, w, &campaign)
	return campaign
}
