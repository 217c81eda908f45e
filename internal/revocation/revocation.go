// Package revocation tracks bearer tokens invalidated by logout until they
// would have expired anyway.
package revocation

import (
	"crypto/sha256"
	"sync"
	"time"
)

// DefaultTTL is used when a token's own expiry is unknown.
const DefaultTTL = 24 * time.Hour

// Set is a concurrent-safe set of revoked tokens. Only SHA-256 digests are
// held, never the tokens themselves.
type Set struct {
	mu     sync.RWMutex
	tokens map[[sha256.Size]byte]time.Time
	now    func() time.Time
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{
		tokens: make(map[[sha256.Size]byte]time.Time),
		now:    time.Now,
	}
}

// Add revokes token until expiresAt. A zero expiresAt means DefaultTTL from
// now.
func (s *Set) Add(token string, expiresAt time.Time) {
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(DefaultTTL)
	}
	s.mu.Lock()
	s.tokens[sha256.Sum256([]byte(token))] = expiresAt
	s.mu.Unlock()
}

// Revoked reports whether token has been revoked and has not yet expired.
func (s *Set) Revoked(token string) bool {
	s.mu.RLock()
	exp, ok := s.tokens[sha256.Sum256([]byte(token))]
	s.mu.RUnlock()
	return ok && s.now().Before(exp)
}

// Remove un-revokes token.
func (s *Set) Remove(token string) {
	s.mu.Lock()
	delete(s.tokens, sha256.Sum256([]byte(token)))
	s.mu.Unlock()
}

// Clear drops every entry.
func (s *Set) Clear() {
	s.mu.Lock()
	s.tokens = make(map[[sha256.Size]byte]time.Time)
	s.mu.Unlock()
}

// Len returns the number of entries, expired ones included until purged.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Purge drops entries that expired at or before now and returns how many
// were removed.
func (s *Set) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, k)
			n++
		}
	}
	return n
}
