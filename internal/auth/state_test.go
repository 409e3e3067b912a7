package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestStateSignerRoundTrip(t *testing.T) {
	s := NewStateSigner(testSecret, time.Minute)

	token, err := s.Issue("nonce-1")
	require.NoError(t, err)

	assert.NoError(t, s.Verify(token, "nonce-1"))
	assert.ErrorIs(t, s.Verify(token, "nonce-2"), ErrInvalidState)
	assert.ErrorIs(t, s.Verify(token, ""), ErrInvalidState)
}

func TestStateSignerRejectsForeignKey(t *testing.T) {
	token, err := NewStateSigner("another-secret-another-secret-xx", time.Minute).Issue("n")
	require.NoError(t, err)

	assert.ErrorIs(t, NewStateSigner(testSecret, time.Minute).Verify(token, "n"), ErrInvalidState)
}

func TestStateSignerExpiry(t *testing.T) {
	s := NewStateSigner(testSecret, time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	token, err := s.Issue("n")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.ErrorIs(t, s.Verify(token, "n"), ErrInvalidState)
}

func TestStateSignerRejectsNoneAlg(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, stateClaims{
		Nonce:            "n",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: stateIssuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	assert.ErrorIs(t, NewStateSigner(testSecret, time.Minute).Verify(token, "n"), ErrInvalidState)
}

func TestStateSignerGarbage(t *testing.T) {
	assert.ErrorIs(t, NewStateSigner(testSecret, time.Minute).Verify("not.a.jwt", "n"), ErrInvalidState)
}
