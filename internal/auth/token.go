package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ubuntu-health/sponsorship-api/internal/identity"
)

// Claims is the signed claim set carried by a bearer credential.
// Validity is re-derived from the signature and expiry on every
// request; there is no server-side session lookup.
type Claims struct {
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"userType"`
	Verified      bool   `json:"isVerified"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies bearer credentials.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service signing with the given
// secret. ttl controls credential lifetime (default 7 days upstream).
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint issues a signed bearer credential for an identity.
func (s *TokenService) Mint(id identity.Identity) (string, error) {
	issued := s.now()
	claims := Claims{
		WalletAddress: id.WalletAddress,
		Role:          string(id.Role),
		Verified:      id.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.WalletAddress,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the credential's signature and expiry and returns the
// identity it encodes.
func (s *TokenService) Verify(tokenString string) (identity.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return identity.Identity{}, ErrInvalidToken
	}

	role := identity.Role(claims.Role)
	if !identity.ValidRole(role) {
		return identity.Identity{}, ErrInvalidToken
	}

	return identity.Identity{
		WalletAddress: claims.WalletAddress,
		Role:          role,
		Verified:      claims.Verified,
	}, nil
}

// TTLSeconds is the credential lifetime in seconds, for response bodies.
func (s *TokenService) TTLSeconds() int {
	return int(s.ttl.Seconds())
}
