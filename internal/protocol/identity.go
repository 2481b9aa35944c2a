package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Identity is a 256-bit, big-endian client identifier (spec.md §4.10).
type Identity [32]byte

func (i Identity) String() string { return hex.EncodeToString(i[:]) }

// Address is a 128-bit per-connection identifier. The all-zero address is
// a sentinel meaning "no address".
type Address [16]byte

func (a Address) IsZero() bool    { return a == Address{} }
func (a Address) String() string { return uuid.UUID(a).String() }

// NewIdentity mints a fresh 256-bit identity.
func NewIdentity() (Identity, error) {
	var id Identity
	if _, err := rand.Read(id[:]); err != nil {
		return Identity{}, fmt.Errorf("protocol: generating identity: %w", err)
	}
	return id, nil
}

// NewAddress mints a fresh per-connection address, borrowing the
// ecosystem's UUID generator for its 128 bits of randomness rather than
// rolling a second crypto/rand call.
func NewAddress() Address {
	return Address(uuid.New())
}

// NewToken mints a credential string bound to id. This port doesn't
// perform real JWS signing — like the teacher's JoinToken, it's an opaque
// random value the server alone recognizes, not a verifiable signed claim.
func NewToken(id Identity) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("protocol: generating token: %w", err)
	}
	return id.String() + "." + hex.EncodeToString(buf), nil
}

// Registry mints and recognizes Identity/token pairs across reconnects,
// mirroring the teacher's TokenManager: a map guarded by a RWMutex, tokens
// generated with crypto/rand.
type Registry struct {
	mu      sync.RWMutex
	byToken map[string]Identity
}

func NewRegistry() *Registry {
	return &Registry{byToken: make(map[string]Identity)}
}

// Authenticate returns the identity, token, and a fresh address for a
// connecting client. If token names an identity this registry already
// minted, that identity is reused and the same token is returned;
// otherwise a new identity and token are minted and registered.
func (r *Registry) Authenticate(token string) (Identity, string, Address, error) {
	if token != "" {
		r.mu.RLock()
		id, ok := r.byToken[token]
		r.mu.RUnlock()
		if ok {
			return id, token, NewAddress(), nil
		}
	}
	id, err := NewIdentity()
	if err != nil {
		return Identity{}, "", Address{}, err
	}
	newToken, err := NewToken(id)
	if err != nil {
		return Identity{}, "", Address{}, err
	}
	r.mu.Lock()
	r.byToken[newToken] = id
	r.mu.Unlock()
	return id, newToken, NewAddress(), nil
}
