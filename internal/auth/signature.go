package auth

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// SignatureVerifier abstracts the signature scheme used by the external
// identity network, so the authentication flow does not depend on a
// specific curve or encoding.
type SignatureVerifier interface {
	// Verify checks signature over message against the public key encoded
	// in walletAddress.
	Verify(walletAddress, message, signature string) error
}

// Ed25519Verifier verifies ed25519 signatures with base58-encoded keys
// and signatures, the format used by Solana-style wallets.
type Ed25519Verifier struct{}

// NewEd25519Verifier creates the default signature verifier.
func NewEd25519Verifier() Ed25519Verifier {
	return Ed25519Verifier{}
}

// Verify implements SignatureVerifier.
func (Ed25519Verifier) Verify(walletAddress, message, signature string) error {
	pub, err := base58.Decode(walletAddress)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ErrInvalidWallet
	}

	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}

// ValidWalletAddress reports whether the address decodes to an
// ed25519 public key.
func ValidWalletAddress(walletAddress string) bool {
	pub, err := base58.Decode(walletAddress)
	return err == nil && len(pub) == ed25519.PublicKeySize
}
