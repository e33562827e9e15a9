package identity

import (
	"sync"
)

// Role classifies what an identity is allowed to do on the platform.
type Role string

const (
	RolePatient  Role = "patient"
	RoleSponsor  Role = "sponsor"
	RoleProvider Role = "provider"
	RoleWitness  Role = "witness"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether r is one of the known platform roles.
func ValidRole(r Role) bool {
	switch r {
	case RolePatient, RoleSponsor, RoleProvider, RoleWitness, RoleAdmin:
		return true
	}
	return false
}

// Identity is a wallet public key with its platform role and
// verification status. The wallet address is immutable; role and
// verification change only through authenticated admin actions.
type Identity struct {
	WalletAddress string `json:"walletAddress"`
	Role          Role   `json:"userType"`
	Verified      bool   `json:"isVerified"`
}

// Registry looks up and mutates identity records.
type Registry interface {
	Lookup(walletAddress string) (Identity, bool)
	SetRole(walletAddress string, role Role) Identity
	SetVerified(walletAddress string, verified bool) Identity
}

// MemoryRegistry is an in-memory Registry implementation.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Identity
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]Identity)}
}

// Lookup returns the identity record for a wallet address.
func (r *MemoryRegistry) Lookup(walletAddress string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.records[walletAddress]
	return id, ok
}

// SetRole assigns a role to a wallet, creating the record if needed.
func (r *MemoryRegistry) SetRole(walletAddress string, role Role) Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.records[walletAddress]
	if !ok {
		id = Identity{WalletAddress: walletAddress, Role: RolePatient}
	}
	id.Role = role
	r.records[walletAddress] = id
	return id
}

// SetVerified updates the verification flag for a wallet, creating
// the record if needed.
func (r *MemoryRegistry) SetVerified(walletAddress string, verified bool) Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.records[walletAddress]
	if !ok {
		id = Identity{WalletAddress: walletAddress, Role: RolePatient}
	}
	id.Verified = verified
	r.records[walletAddress] = id
	return id
}
