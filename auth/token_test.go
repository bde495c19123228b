package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestTokens(t *testing.T) (*TokenService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, err := NewTokenService(testKey, WithClock(clock.Now))
	require.NoError(t, err)
	return s, clock
}

func TestNewTokenService_RejectsShortKey(t *testing.T) {
	_, err := NewTokenService([]byte("too-short"))
	assert.Error(t, err)
}

func TestToken_RoundTrip(t *testing.T) {
	s, _ := newTestTokens(t)
	for _, id := range []string{"user-1", "0b7f1c52-7a53-4b1a-9d7e-7f3f1d2a9c11"} {
		token, err := s.Issue(id)
		require.NoError(t, err)

		got, err := s.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestToken_Expiry(t *testing.T) {
	s, clock := newTestTokens(t)
	token, err := s.Issue("user-1")
	require.NoError(t, err)

	clock.t = clock.t.Add(TokenTTL - time.Second)
	_, err = s.Verify(token)
	assert.NoError(t, err)

	clock.t = clock.t.Add(2 * time.Second)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestToken_RejectsTampering(t *testing.T) {
	s, clock := newTestTokens(t)
	token, err := s.Issue("user-1")
	require.NoError(t, err)

	other, err := NewTokenService([]byte("another-key-another-key-another!!"), WithClock(clock.Now))
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-2",
		ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
	}).SignedString([]byte("0123456789abcdef0123456789abcdeX"))
	require.NoError(t, err)
	swapped := strings.Join([]string{strings.Split(forged, ".")[0], strings.Split(forged, ".")[1], parts[2]}, ".")
	_, err = s.Verify(swapped)
	assert.ErrorIs(t, err, ErrInvalidToken)

	for _, bad := range []string{"", "garbage", "a.b.c"} {
		_, err = s.Verify(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestToken_RejectsOtherAlgorithmsAndMissingClaims(t *testing.T) {
	s, clock := newTestTokens(t)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).SignedString(testKey)
	require.NoError(t, err)
	_, err = s.Verify(noExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
	}).SignedString(testKey)
	require.NoError(t, err)
	_, err = s.Verify(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentify(t *testing.T) {
	s, clock := newTestTokens(t)
	token, err := s.Issue("user-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		state  TokenState
		userID string
	}{
		{"absent", "", NoToken, ""},
		{"blank", "   ", NoToken, ""},
		{"bearer without token", "Bearer ", NoToken, ""},
		{"bearer token", "Bearer " + token, ValidToken, "user-1"},
		{"lowercase scheme", "bearer " + token, ValidToken, "user-1"},
		{"raw token", token, ValidToken, "user-1"},
		{"garbage", "Bearer nope", InvalidToken, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := s.Identify(tt.header)
			assert.Equal(t, tt.state, id.State)
			assert.Equal(t, tt.userID, id.UserID)
			if tt.state == InvalidToken {
				assert.ErrorIs(t, id.Err, ErrInvalidToken)
			}
		})
	}

	clock.t = clock.t.Add(TokenTTL + time.Minute)
	id := s.Identify("Bearer " + token)
	assert.Equal(t, InvalidToken, id.State)
	assert.ErrorIs(t, id.Err, ErrExpiredToken)
}
