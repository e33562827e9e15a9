package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/logger"
)

// suspiciousWindow is how long a penalized key stays hard-blocked.
const suspiciousWindow = time.Hour

// Result reports the outcome of a budget check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Guard enforces per-identity, per-endpoint request budgets with a
// separate penalty blocklist for flagged actors. Store failures fail
// open: throttling is traded for availability, never the reverse.
type Guard struct {
	store    RateStore
	policies map[string]Policy
	log      *zap.Logger
	now      func() time.Time
}

// NewGuard creates a guard over the given store and policy table. A
// nil policy table uses DefaultPolicies.
func NewGuard(store RateStore, policies map[string]Policy) *Guard {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Guard{
		store:    store,
		policies: policies,
		log:      logger.Log,
		now:      time.Now,
	}
}

func (g *Guard) policy(name string) Policy {
	if p, ok := g.policies[name]; ok {
		return p
	}
	return g.policies[PolicyGeneral]
}

// Consume spends one point of the named policy's budget for key. When
// the budget is exhausted the result carries the time until the next
// window; no further state is mutated for the caller.
func (g *Guard) Consume(ctx context.Context, policyName, key string) Result {
	p := g.policy(policyName)

	if until, blocked := g.blockedUntil(ctx, key); blocked {
		return Result{
			Allowed:    false,
			Limit:      p.Points,
			Remaining:  0,
			RetryAfter: until.Sub(g.now()),
			ResetAt:    until,
		}
	}

	count, resetAt, err := g.store.Incr(ctx, p.Name+":"+key, p.Window)
	if err != nil {
		// Fail open on storage loss.
		g.log.Warn("Rate store unavailable, allowing request",
			zap.String("policy", p.Name),
			zap.Error(err))
		return Result{Allowed: true, Limit: p.Points, Remaining: p.Points}
	}

	if count > int64(p.Points) {
		retryAfter := resetAt.Sub(g.now())
		if p.Lockout > 0 {
			until := g.now().Add(p.Lockout)
			if err := g.store.Block(ctx, "lockout:"+key, until); err != nil {
				g.log.Warn("Failed to apply lockout", zap.Error(err))
			} else {
				retryAfter = p.Lockout
				resetAt = until
			}
		}
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Result{
			Allowed:    false,
			Limit:      p.Points,
			Remaining:  0,
			RetryAfter: retryAfter,
			ResetAt:    resetAt,
		}
	}

	return Result{
		Allowed:   true,
		Limit:     p.Points,
		Remaining: p.Points - int(count),
		ResetAt:   resetAt,
	}
}

// Peek reports budget status without consuming a point.
func (g *Guard) Peek(ctx context.Context, policyName, key string) Result {
	p := g.policy(policyName)

	if until, blocked := g.blockedUntil(ctx, key); blocked {
		return Result{
			Allowed:    false,
			Limit:      p.Points,
			RetryAfter: until.Sub(g.now()),
			ResetAt:    until,
		}
	}

	count, resetAt, err := g.store.Get(ctx, p.Name+":"+key)
	if err != nil {
		return Result{Allowed: true, Limit: p.Points, Remaining: p.Points}
	}

	remaining := p.Points - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if resetAt.IsZero() {
		resetAt = g.now().Add(p.Window)
	}
	return Result{
		Allowed:   remaining > 0,
		Limit:     p.Points,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Penalize puts key on the suspicious blocklist for the penalty
// window, independent of any policy budget.
func (g *Guard) Penalize(ctx context.Context, key string) {
	until := g.now().Add(suspiciousWindow)
	if err := g.store.Block(ctx, "suspicious:"+key, until); err != nil {
		g.log.Error("Failed to penalize key", zap.String("key", key), zap.Error(err))
		return
	}
	g.log.Warn("Key marked as suspicious",
		zap.String("key", key),
		zap.Time("blocked_until", until))
}

// Blocked reports whether key is currently on the suspicious blocklist
// or in a policy lockout.
func (g *Guard) Blocked(ctx context.Context, key string) bool {
	_, blocked := g.blockedUntil(ctx, key)
	return blocked
}

func (g *Guard) blockedUntil(ctx context.Context, key string) (time.Time, bool) {
	for _, prefix := range []string{"suspicious:", "lockout:"} {
		until, blocked, err := g.store.BlockedUntil(ctx, prefix+key)
		if err != nil {
			// Fail open.
			continue
		}
		if blocked {
			return until, true
		}
	}
	return time.Time{}, false
}
