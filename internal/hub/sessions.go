package hub

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSweepInterval = time.Hour
	DefaultMaxSessions   = 64

	sessionTokenBytes = 32
)

var ErrUnauthorized = errors.New("unauthorized")

// Sessions holds admin tokens in memory. A token is valid until its expiry,
// which a successful protected operation pushes forward by one TTL. The table
// holds at most maxSessions tokens; issuing past the cap evicts the token
// closest to expiry.
type Sessions struct {
	ttl         time.Duration
	maxSessions int
	nowFn       func() time.Time

	mu     sync.Mutex
	tokens map[string]time.Time
}

func NewSessions(ttl time.Duration, nowFn func() time.Time) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Sessions{ttl: ttl, maxSessions: DefaultMaxSessions, nowFn: nowFn, tokens: map[string]time.Time{}}
}

// SetMaxSessions changes the table cap. Values below one are ignored.
func (s *Sessions) SetMaxSessions(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.maxSessions = n
	s.mu.Unlock()
}

func (s *Sessions) Issue() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	if len(s.tokens) >= s.maxSessions {
		s.sweepLocked(now)
	}
	for len(s.tokens) >= s.maxSessions {
		s.evictSoonestLocked()
	}
	s.tokens[token] = now.Add(s.ttl)
	return token, nil
}

func (s *Sessions) evictSoonestLocked() {
	var (
		victim  string
		soonest time.Time
	)
	for token, expiresAt := range s.tokens {
		if victim == "" || expiresAt.Before(soonest) {
			victim, soonest = token, expiresAt
		}
	}
	delete(s.tokens, victim)
}

// Validate returns ErrUnauthorized for empty, unknown and expired tokens
// alike.
func (s *Sessions) Validate(token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.tokens[token]
	if !ok || !s.nowFn().Before(expiresAt) {
		return ErrUnauthorized
	}
	return nil
}

// Extend renews a still-valid token for another TTL.
func (s *Sessions) Extend(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	expiresAt, ok := s.tokens[token]
	if !ok || !now.Before(expiresAt) {
		return false
	}
	s.tokens[token] = now.Add(s.ttl)
	return true
}

func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Sweep removes expired tokens and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.nowFn())
}

func (s *Sessions) sweepLocked(now time.Time) int {
	removed := 0
	for token, expiresAt := range s.tokens {
		if !now.Before(expiresAt) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// RunSweeper sweeps on every tick until ctx is cancelled.
func (s *Sessions) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Info("expired admin sessions swept", "removed", n)
			}
		}
	}
}

// PasswordChecker compares a presented admin password against the
// configured secret, which is either plain text or a bcrypt hash. An empty
// secret rejects everything.
type PasswordChecker struct {
	secret string
	bcrypt bool
}

func NewPasswordChecker(secret string) PasswordChecker {
	return PasswordChecker{secret: secret, bcrypt: IsBcryptHash(secret)}
}

func IsBcryptHash(v string) bool {
	if len(v) != 60 {
		return false
	}
	return strings.HasPrefix(v, "$2a$") || strings.HasPrefix(v, "$2b$") || strings.HasPrefix(v, "$2y$")
}

func (p PasswordChecker) Enabled() bool {
	return p.secret != ""
}

func (p PasswordChecker) Check(presented string) bool {
	if p.secret == "" || presented == "" {
		return false
	}
	if p.bcrypt {
		return bcrypt.CompareHashAndPassword([]byte(p.secret), []byte(presented)) == nil
	}
	expectedDigest := sha256.Sum256([]byte(p.secret))
	presentedDigest := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(expectedDigest[:], presentedDigest[:]) == 1
}
