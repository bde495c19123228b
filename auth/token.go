package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed lifetime of a session token.
const TokenTTL = 86400 * time.Second

const MinSigningKeyLength = 32

// TokenService issues and verifies stateless HS256 session tokens. The key is
// fixed at construction.
type TokenService struct {
	key []byte
	now func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(key []byte, opts ...TokenOption) (*TokenService, error) {
	if len(key) < MinSigningKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinSigningKeyLength, len(key))
	}
	s := &TokenService{key: append([]byte(nil), key...), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for userID that expires TokenTTL from now.
func (s *TokenService) Issue(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the user ID carried by token. The claim is trusted as is;
// the credential store is not consulted.
func (s *TokenService) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpiredToken
	case err != nil:
		return "", ErrInvalidToken
	case claims.Subject == "":
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type TokenState int

const (
	NoToken TokenState = iota
	ValidToken
	InvalidToken
)

func (s TokenState) String() string {
	switch s {
	case NoToken:
		return "none"
	case ValidToken:
		return "valid"
	case InvalidToken:
		return "invalid"
	}
	return fmt.Sprintf("TokenState(%d)", int(s))
}

// Identity is the outcome of checking a request's credentials. Callers must
// decide what each State means for them.
type Identity struct {
	State  TokenState
	UserID string
	Err    error
}

func Anonymous() Identity {
	return Identity{State: NoToken}
}

// Identify verifies an Authorization header value. A leading "Bearer " is
// stripped; an empty value means no token was presented.
func (s *TokenService) Identify(header string) Identity {
	token := strings.TrimSpace(header)
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "bearer") {
		token = strings.TrimSpace(rest)
	} else if strings.EqualFold(token, "bearer") {
		token = ""
	}
	if token == "" {
		return Anonymous()
	}
	userID, err := s.Verify(token)
	if err != nil {
		return Identity{State: InvalidToken, Err: err}
	}
	return Identity{State: ValidToken, UserID: userID}
}
