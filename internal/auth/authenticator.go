package auth

import (
	"crypto/sha256"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// rejectedTTL is how long a failed token is refused without another bcrypt compare.
	rejectedTTL = time.Minute
	maxRejected = 1024
)

// AuthResult is the outcome of checking a bearer token.
type AuthResult struct {
	Authenticated bool
	ErrorCode     string
	ErrorMessage  string
}

// Authenticator checks bearer tokens against configured bcrypt hashes.
// With no hashes configured every request is accepted.
type Authenticator struct {
	hashes []string
	logger *slog.Logger

	// Successful verifications are remembered so bcrypt runs once per token.
	// Failed ones are remembered until their expiry.
	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
	rejected map[[sha256.Size]byte]time.Time
	now      func() time.Time
}

// NewAuthenticator creates an authenticator for the given token hashes.
func NewAuthenticator(hashes []string, logger *slog.Logger) *Authenticator {
	cleaned := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			cleaned = append(cleaned, h)
		}
	}
	return &Authenticator{
		hashes:   cleaned,
		logger:   logger,
		verified: make(map[[sha256.Size]byte]struct{}),
		rejected: make(map[[sha256.Size]byte]time.Time),
		now:      time.Now,
	}
}

// Enabled reports whether tokens are required.
func (a *Authenticator) Enabled() bool {
	return len(a.hashes) > 0
}

// Authenticate validates a bearer token.
func (a *Authenticator) Authenticate(token string) *AuthResult {
	if !a.Enabled() {
		return &AuthResult{Authenticated: true}
	}

	if token == "" {
		return &AuthResult{
			ErrorCode:    ErrCodeMissingToken,
			ErrorMessage: "Authorization header required",
		}
	}

	if !IsValidTokenFormat(token) {
		return a.reject(token)
	}

	sum := sha256.Sum256([]byte(token))
	now := a.now()

	a.mu.RLock()
	_, ok := a.verified[sum]
	until, refused := a.rejected[sum]
	a.mu.RUnlock()
	if ok {
		return &AuthResult{Authenticated: true}
	}
	if refused && now.Before(until) {
		return a.reject(token)
	}

	for _, hash := range a.hashes {
		if VerifyToken(token, hash) {
			a.mu.Lock()
			a.verified[sum] = struct{}{}
			delete(a.rejected, sum)
			a.mu.Unlock()
			return &AuthResult{Authenticated: true}
		}
	}

	a.mu.Lock()
	if len(a.rejected) >= maxRejected {
		for k, exp := range a.rejected {
			if !now.Before(exp) {
				delete(a.rejected, k)
			}
		}
		if len(a.rejected) >= maxRejected {
			a.rejected = make(map[[sha256.Size]byte]time.Time)
		}
	}
	a.rejected[sum] = now.Add(rejectedTTL)
	a.mu.Unlock()

	return a.reject(token)
}

func (a *Authenticator) reject(token string) *AuthResult {
	if a.logger != nil {
		a.logger.Warn("Rejected bearer token", "tokenMasked", MaskToken(token))
	}
	return &AuthResult{
		ErrorCode:    ErrCodeInvalidToken,
		ErrorMessage: "Invalid API token",
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
