package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lkarlslund/tokensync/pkg/cache"
)

// SessionStore keeps opaque admin session tokens with a fixed lifetime.
type SessionStore struct {
	ttl    time.Duration
	tokens *cache.TTLMap[string, time.Time]
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{ttl: ttl, tokens: cache.NewTTLMap[string, time.Time]()}
}

func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create issues a new 32 byte random token valid until now+TTL.
func (s *SessionStore) Create(now time.Time) (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(b[:])
	s.tokens.SetWithTTL(token, now, now, s.ttl)
	return token, nil
}

func (s *SessionStore) Valid(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	_, ok := s.tokens.GetFresh(token, now)
	return ok
}

func (s *SessionStore) Revoke(token string) {
	s.tokens.Delete(token)
}

// Sweep drops expired sessions and returns how many were removed.
func (s *SessionStore) Sweep(now time.Time) int {
	return s.tokens.Sweep(now)
}

func (s *SessionStore) Len() int {
	return s.tokens.Len()
}
