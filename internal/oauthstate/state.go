// Package oauthstate issues and verifies the signed state value that ties an
// OAuth callback to the browser that started the flow.
package oauthstate

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mikey/sift-mail/internal/core"
)

// CookieName is the cookie carrying the issued state
const CookieName = "sift_oauth_state"

const issuer = "sift-mail"

var (
	// ErrMissingState is returned when the callback carries no state or no cookie
	ErrMissingState = errors.New("missing oauth state")

	// ErrStateExpired is returned when the state outlived its TTL
	ErrStateExpired = errors.New("oauth state expired")
)

// Claims are the JWT claims of a state value
type Claims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// Signer issues HS256-signed state values
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. An empty secret is replaced by a random one,
// which invalidates pending flows on restart.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate state secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Signer{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued states
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue returns a fresh signed state value
func (s *Signer) Issue() (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Nonce: uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return token, nil
}

// Verify checks that the state echoed by the provider equals the cookie
// issued to the browser and that it is a valid unexpired state. Every
// failure is reported as core.ErrStateMismatch.
func (s *Signer) Verify(cookieValue, returned string) error {
	if cookieValue == "" || returned == "" {
		return core.NewDomainError(core.ErrorTypeStateMismatch, "oauth state mismatch", ErrMissingState)
	}
	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(returned)) != 1 {
		return core.ErrStateMismatch
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(returned, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			err = ErrStateExpired
		}
		return core.NewDomainError(core.ErrorTypeStateMismatch, "oauth state mismatch", err)
	}
	return nil
}
