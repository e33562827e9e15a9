package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore simulates a lost counter backend.
type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("store down")
}
func (failingStore) Get(context.Context, string) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("store down")
}
func (failingStore) Block(context.Context, string, time.Time) error {
	return errors.New("store down")
}
func (failingStore) BlockedUntil(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("store down")
}

func TestGuard_ConsumeWithinBudget(t *testing.T) {
	g := NewGuard(NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res := g.Consume(ctx, PolicyAuth, "wallet_ua")
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, res.Limit)
		assert.Equal(t, 4-i, res.Remaining)
	}
}

func TestGuard_SixthAuthAttemptLockedOut(t *testing.T) {
	g := NewGuard(NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, g.Consume(ctx, PolicyAuth, "wallet_ua").Allowed)
	}

	res := g.Consume(ctx, PolicyAuth, "wallet_ua")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	// Exhausting the auth budget triggers the half-hour lockout.
	assert.Greater(t, res.RetryAfter, 29*time.Minute)

	// The lockout also rejects before any budget is consumed.
	res = g.Consume(ctx, PolicyAuth, "wallet_ua")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestGuard_BudgetsAreKeyedPerClient(t *testing.T) {
	g := NewGuard(NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		g.Consume(ctx, PolicyAuth, "walletA_ua")
	}

	// A different principal, and the same principal with a different
	// user agent, each get their own budget.
	assert.True(t, g.Consume(ctx, PolicyAuth, "walletB_ua").Allowed)
	assert.True(t, g.Consume(ctx, PolicyAuth, "walletA_otherua").Allowed)
}

func TestGuard_PoliciesAreIndependent(t *testing.T) {
	g := NewGuard(NewMemoryStore(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, g.Consume(ctx, PolicyTreatmentCreation, "k").Allowed)
	}
	require.False(t, g.Consume(ctx, PolicyTreatmentCreation, "k").Allowed)

	// Treatment creation lockout blocks everything for that key, so use
	// a fresh key to show general is untouched by a different policy.
	assert.True(t, g.Consume(ctx, PolicyGeneral, "k2").Allowed)
	for i := 0; i < 9; i++ {
		g.Consume(ctx, PolicySponsorship, "k2")
	}
	assert.True(t, g.Consume(ctx, PolicySponsorship, "k2").Allowed)
	assert.False(t, g.Consume(ctx, PolicySponsorship, "k2").Allowed)
}

func TestGuard_PeekDoesNotConsume(t *testing.T) {
	g := NewGuard(NewMemoryStore(), nil)
	ctx := context.Background()

	g.Consume(ctx, PolicySponsorship, "k")

	before := g.Peek(ctx, PolicySponsorship, "k")
	after := g.Peek(ctx, PolicySponsorship, "k")
	assert.Equal(t, before.Remaining, after.Remaining)
	assert.Equal(t, 9, after.Remaining)
	assert.True(t, after.Allowed)
}

func TestGuard_PenalizeBlocksAllPolicies(t *testing.T) {
	g := NewGuard(NewMemoryStore(), nil)
	ctx := context.Background()

	g.Penalize(ctx, "bad_actor")

	assert.True(t, g.Blocked(ctx, "bad_actor"))
	for _, policy := range []string{PolicyGeneral, PolicyAuth, PolicySponsorship} {
		res := g.Consume(ctx, policy, "bad_actor")
		assert.False(t, res.Allowed, "policy %s should reject a penalized key", policy)
	}
	assert.False(t, g.Blocked(ctx, "someone_else"))
}

func TestGuard_FailsOpenOnStoreLoss(t *testing.T) {
	g := NewGuard(failingStore{}, nil)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		res := g.Consume(ctx, PolicyGeneral, "k")
		require.True(t, res.Allowed)
	}
}

func TestGuard_WindowResets(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	g := NewGuard(store, nil)
	g.now = store.now
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		g.Consume(ctx, PolicySponsorship, "k")
	}
	require.False(t, g.Consume(ctx, PolicySponsorship, "k").Allowed)

	// Sponsorship carries no lockout, so the next window opens cleanly.
	now = now.Add(time.Hour + time.Second)

	assert.True(t, g.Consume(ctx, PolicySponsorship, "k").Allowed)
}

func TestGuard_UnknownPolicyFallsBackToGeneral(t *testing.T) {
	g := NewGuard(NewMemoryStore(), nil)

	res := g.Consume(context.Background(), "no-such-policy", "k")
	assert.True(t, res.Allowed)
	assert.Equal(t, 100, res.Limit)
}
