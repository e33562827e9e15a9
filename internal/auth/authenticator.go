package auth

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/identity"
	"github.com/ubuntu-health/sponsorship-api/internal/logger"
)

// Authenticator drives the wallet sign-in handshake: it issues
// challenges, verifies wallet signatures over them, and mints bearer
// credentials with role and verification status from the identity
// registry.
type Authenticator struct {
	challenges *ChallengeService
	verifier   SignatureVerifier
	tokens     *TokenService
	registry   identity.Registry
	log        *zap.Logger

	// consumed tracks nonces of successfully verified challenges until
	// they would have expired anyway, so a signed challenge cannot be
	// replayed.
	mu       sync.Mutex
	consumed map[string]time.Time
	now      func() time.Time
}

// NewAuthenticator wires the authentication components together.
func NewAuthenticator(challenges *ChallengeService, verifier SignatureVerifier, tokens *TokenService, registry identity.Registry) *Authenticator {
	return &Authenticator{
		challenges: challenges,
		verifier:   verifier,
		tokens:     tokens,
		registry:   registry,
		log:        logger.Log,
		consumed:   make(map[string]time.Time),
		now:        time.Now,
	}
}

// IssueChallenge creates a sign-in challenge for a wallet address.
func (a *Authenticator) IssueChallenge(walletAddress string) (Challenge, error) {
	if !ValidWalletAddress(walletAddress) {
		return Challenge{}, ErrInvalidWallet
	}
	return a.challenges.Issue(walletAddress), nil
}

// VerifyAndAuthenticate validates a signed challenge and mints a bearer
// credential. Unknown wallets default to an unverified patient
// identity; role and verification otherwise come from the registry.
func (a *Authenticator) VerifyAndAuthenticate(walletAddress, message, signature string) (string, identity.Identity, error) {
	nonce, err := a.challenges.Validate(message)
	if err != nil {
		return "", identity.Identity{}, err
	}

	// The signed statement must be for the wallet that is authenticating.
	if WalletFromMessage(message) != walletAddress {
		return "", identity.Identity{}, ErrInvalidChallenge
	}

	if err := a.verifier.Verify(walletAddress, message, signature); err != nil {
		return "", identity.Identity{}, err
	}

	// A challenge is single-use: consume the nonce on success.
	if !a.consumeNonce(nonce) {
		return "", identity.Identity{}, ErrInvalidChallenge
	}

	id, ok := a.registry.Lookup(walletAddress)
	if !ok {
		id = identity.Identity{
			WalletAddress: walletAddress,
			Role:          identity.RolePatient,
			Verified:      false,
		}
	}

	token, err := a.tokens.Mint(id)
	if err != nil {
		a.log.Error("Failed to mint bearer credential",
			zap.String("wallet_address", walletAddress),
			zap.Error(err))
		return "", identity.Identity{}, err
	}

	a.log.Info("Wallet authenticated",
		zap.String("wallet_address", walletAddress),
		zap.String("role", string(id.Role)))

	return token, id, nil
}

// Authenticate checks a bearer credential and returns the identity it
// encodes.
func (a *Authenticator) Authenticate(tokenString string) (identity.Identity, error) {
	if tokenString == "" {
		return identity.Identity{}, ErrMissingToken
	}
	return a.tokens.Verify(tokenString)
}

// Tokens exposes the token service, used by handlers for expiry metadata.
func (a *Authenticator) Tokens() *TokenService {
	return a.tokens
}

// consumeNonce records a nonce as used. Returns false if it was already
// consumed. Expired entries are swept opportunistically.
func (a *Authenticator) consumeNonce(nonce string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for n, exp := range a.consumed {
		if now.After(exp) {
			delete(a.consumed, n)
		}
	}

	if _, used := a.consumed[nonce]; used {
		return false
	}
	a.consumed[nonce] = now.Add(a.challenges.ttl)
	return true
}
