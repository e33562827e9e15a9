package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	challengeHeader = "Ubuntu Health Authentication"
	challengeFooter = "Please sign this message to authenticate with Ubuntu Health platform."

	timestampPrefix = "Timestamp: "
	noncePrefix     = "Nonce: "
	walletPrefix    = "Wallet: "
)

// Challenge is a short-lived sign-in statement the caller signs
// out-of-band with their wallet. It is stateless: the expiry is
// re-derived from the timestamp embedded in the text, not from a
// server-side lookup.
type Challenge struct {
	WalletAddress string    `json:"walletAddress"`
	Text          string    `json:"challenge"`
	IssuedAt      time.Time `json:"-"`
	ExpiresIn     int       `json:"expiresIn"`
}

// ChallengeService issues and validates sign-in challenges.
type ChallengeService struct {
	ttl time.Duration
	now func() time.Time
}

// NewChallengeService creates a challenge service with the given
// challenge lifetime.
func NewChallengeService(ttl time.Duration) *ChallengeService {
	return &ChallengeService{ttl: ttl, now: time.Now}
}

// Issue generates a new challenge for a wallet address. The nonce is
// random per challenge; the timestamp is embedded in milliseconds so
// Validate can re-derive the expiry from the text alone.
func (s *ChallengeService) Issue(walletAddress string) Challenge {
	issuedAt := s.now()
	nonce := uuid.NewString()

	text := fmt.Sprintf("%s\n\n%s%s\n%s%d\n%s%s\n\n%s",
		challengeHeader,
		walletPrefix, walletAddress,
		timestampPrefix, issuedAt.UnixMilli(),
		noncePrefix, nonce,
		challengeFooter,
	)

	return Challenge{
		WalletAddress: walletAddress,
		Text:          text,
		IssuedAt:      issuedAt,
		ExpiresIn:     int(s.ttl.Seconds()),
	}
}

// Validate checks that a signed challenge message is well formed and
// not older than the challenge lifetime. Returns the embedded nonce so
// the caller can enforce single use.
func (s *ChallengeService) Validate(message string) (nonce string, err error) {
	if !strings.HasPrefix(message, challengeHeader) {
		return "", ErrInvalidChallenge
	}

	var issuedMillis int64 = -1
	for _, line := range strings.Split(message, "\n") {
		switch {
		case strings.HasPrefix(line, timestampPrefix):
			issuedMillis, err = strconv.ParseInt(strings.TrimPrefix(line, timestampPrefix), 10, 64)
			if err != nil {
				return "", ErrInvalidChallenge
			}
		case strings.HasPrefix(line, noncePrefix):
			nonce = strings.TrimPrefix(line, noncePrefix)
		}
	}
	if issuedMillis < 0 || nonce == "" {
		return "", ErrInvalidChallenge
	}

	age := s.now().Sub(time.UnixMilli(issuedMillis))
	if age < 0 || age > s.ttl {
		return "", ErrInvalidChallenge
	}

	return nonce, nil
}

// WalletFromMessage extracts the wallet address line from a challenge
// message, or an empty string if absent.
func WalletFromMessage(message string) string {
	for _, line := range strings.Split(message, "\n") {
		if strings.HasPrefix(line, walletPrefix) {
			return strings.TrimPrefix(line, walletPrefix)
		}
	}
	return ""
}
