package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubuntu-health/sponsorship-api/internal/escrow"
	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/ledger"
)

func TestCreateCampaign(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "patientWallet", identity.RolePatient, true)

	campaign := env.createCampaign(t, token)
	assert.Equal(t, "patientWallet", campaign.PatientWallet)
	assert.Equal(t, escrow.StatusOpen, campaign.Status)
	assert.Len(t, campaign.Milestones, 2)
}

func TestCreateCampaign_InvalidSchedule(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "patientWallet", identity.RolePatient, true)

	w := env.do(t, http.MethodPost, "/campaigns", token, CreateCampaignRequest{
		TargetAmount: 1000,
		Milestones: []escrow.MilestoneParams{
			{ReleasePercentage: 50},
			{ReleasePercentage: 40},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body ErrorResponse
	decodeJSON(t, w, &body)
	assert.Equal(t, "INVALID_MILESTONES", body.Code)
}

func TestCreateCampaign_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/campaigns", "", CreateCampaignRequest{TargetAmount: 100})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetAndListCampaigns(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "patientWallet", identity.RolePatient, true)
	campaign := env.createCampaign(t, token)

	w := env.do(t, http.MethodGet, "/campaigns/"+campaign.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got escrow.Campaign
	decodeJSON(t, w, &got)
	assert.Equal(t, campaign.ID, got.ID)

	w = env.do(t, http.MethodGet, "/campaigns", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Object string            `json:"object"`
		Data   []escrow.Campaign `json:"data"`
	}
	decodeJSON(t, w, &list)
	assert.Equal(t, "list", list.Object)
	assert.Len(t, list.Data, 1)

	w = env.do(t, http.MethodGet, "/campaigns/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommitFunds(t *testing.T) {
	env := newTestEnv(t)
	patientToken := env.tokenFor(t, "patientWallet", identity.RolePatient, true)
	sponsorToken := env.tokenFor(t, "sponsorWallet", identity.RoleSponsor, true)
	campaign := env.createCampaign(t, patientToken)

	w := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID.String()+"/commitments", sponsorToken,
		CommitFundsRequest{Amount: 1000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var commitment escrow.Commitment
	decodeJSON(t, w, &commitment)
	assert.Equal(t, "sponsorWallet", commitment.SponsorWallet)
	assert.Equal(t, int64(1000), commitment.Amount)
	assert.NotEmpty(t, commitment.LedgerTxRef)

	// The campaign reached its target.
	w = env.do(t, http.MethodGet, "/campaigns/"+campaign.ID.String(), sponsorToken, nil)
	var got escrow.Campaign
	decodeJSON(t, w, &got)
	assert.Equal(t, escrow.StatusFunded, got.Status)
}

func TestCommitFunds_OverTarget(t *testing.T) {
	env := newTestEnv(t)
	patientToken := env.tokenFor(t, "patientWallet", identity.RolePatient, true)
	sponsorToken := env.tokenFor(t, "sponsorWallet", identity.RoleSponsor, true)
	campaign := env.createCampaign(t, patientToken)

	w := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID.String()+"/commitments", sponsorToken,
		CommitFundsRequest{Amount: 1500})
	assert.Equal(t, http.StatusConflict, w.Code)

	var body ErrorResponse
	decodeJSON(t, w, &body)
	assert.Equal(t, "EXCEEDS_TARGET", body.Code)
}

func TestCommitFunds_LedgerDown(t *testing.T) {
	env := newTestEnv(t)
	patientToken := env.tokenFor(t, "patientWallet", identity.RolePatient, true)
	sponsorToken := env.tokenFor(t, "sponsorWallet", identity.RoleSponsor, true)
	campaign := env.createCampaign(t, patientToken)

	env.gateway.failWith = ledger.ErrTimeout
	w := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID.String()+"/commitments", sponsorToken,
		CommitFundsRequest{Amount: 100, AttemptID: "a1"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var body map[string]interface{}
	decodeJSON(t, w, &body)
	assert.Equal(t, "LEDGER_TIMEOUT", body["code"])
	assert.Equal(t, true, body["retryable"])

	// Nothing was recorded; the retry goes through cleanly.
	env.gateway.failWith = nil
	w = env.do(t, http.MethodPost, "/campaigns/"+campaign.ID.String()+"/commitments", sponsorToken,
		CommitFundsRequest{Amount: 100, AttemptID: "a1"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestIdentityAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.tokenFor(t, "adminWallet", identity.RoleAdmin, true)
	patientToken := env.tokenFor(t, "patientWallet", identity.RolePatient, false)

	// Non-admin is rejected.
	w := env.do(t, http.MethodPut, "/admin/identities/someWallet/role", patientToken,
		SetRoleRequest{Role: identity.RoleWitness})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, "/admin/identities/someWallet/role", adminToken,
		SetRoleRequest{Role: identity.RoleWitness})
	require.Equal(t, http.StatusOK, w.Code)

	var id identity.Identity
	decodeJSON(t, w, &id)
	assert.Equal(t, identity.RoleWitness, id.Role)

	yes := true
	w = env.do(t, http.MethodPut, "/admin/identities/someWallet/verified", adminToken,
		SetVerifiedRequest{Verified: &yes})
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &id)
	assert.True(t, id.Verified)

	// Unknown roles are refused.
	w = env.do(t, http.MethodPut, "/admin/identities/someWallet/role", adminToken,
		map[string]string{"userType": "overlord"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMilestoneLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	patientToken := env.tokenFor(t, "patientWallet", identity.RolePatient, true)
	sponsorToken := env.tokenFor(t, "sponsorWallet", identity.RoleSponsor, true)
	providerToken := env.tokenFor(t, "providerWallet", identity.RoleProvider, true)
	witnessToken := env.tokenFor(t, "witnessWallet", identity.RoleWitness, true)

	campaign := env.createCampaign(t, patientToken)
	w := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID.String()+"/commitments", sponsorToken,
		CommitFundsRequest{Amount: 1000})
	require.Equal(t, http.StatusCreated, w.Code)

	base := fmt.Sprintf("/campaigns/%s/milestones/0", campaign.ID)

	// Claim by the patient.
	w = env.do(t, http.MethodPost, base+"/claim", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The claimant cannot verify; a witness can.
	w = env.do(t, http.MethodPost, base+"/verify", patientToken, VerifyMilestoneRequest{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, base+"/verify", witnessToken, VerifyMilestoneRequest{EvidenceHash: "sha256:x"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Release pays 40% of committed funds to the patient.
	w = env.do(t, http.MethodPost, base+"/release", providerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var record escrow.ReleaseRecord
	decodeJSON(t, w, &record)
	assert.Equal(t, int64(400), record.Amount)

	// A second release of the same milestone conflicts.
	w = env.do(t, http.MethodPost, base+"/release", providerToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	var body ErrorResponse
	decodeJSON(t, w, &body)
	assert.Equal(t, "ALREADY_RELEASED", body.Code)
}

func TestMilestoneReject(t *testing.T) {
	env := newTestEnv(t)
	patientToken := env.tokenFor(t, "patientWallet", identity.RolePatient, true)
	sponsorToken := env.tokenFor(t, "sponsorWallet", identity.RoleSponsor, true)
	witnessToken := env.tokenFor(t, "witnessWallet", identity.RoleWitness, true)

	campaign := env.createCampaign(t, patientToken)
	w := env.do(t, http.MethodPost, "/campaigns/"+campaign.ID.String()+"/commitments", sponsorToken,
		CommitFundsRequest{Amount: 1000})
	require.Equal(t, http.StatusCreated, w.Code)

	base := fmt.Sprintf("/campaigns/%s/milestones/0", campaign.ID)
	w = env.do(t, http.MethodPost, base+"/claim", patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A reason is mandatory.
	w = env.do(t, http.MethodPost, base+"/reject", witnessToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/reject", witnessToken, RejectMilestoneRequest{Reason: "missing records"})
	require.Equal(t, http.StatusOK, w.Code)

	// The milestone can be claimed again after rejection.
	w = env.do(t, http.MethodPost, base+"/claim", patientToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
