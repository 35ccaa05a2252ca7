package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer("geheim", time.Hour, func() time.Time { return now })
	require.NoError(t, err)

	raw, expires, err := issuer.Issue("42", Claims{Kind: "user", Role: "manager", Username: "mia"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user", claims.Kind)
	assert.Equal(t, "manager", claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer, err := NewIssuer("geheim", time.Hour, clock)
	require.NoError(t, err)
	raw, _, err := issuer.Issue("7", Claims{Kind: "broker"})
	require.NoError(t, err)

	other, err := NewIssuer("anderes-geheimnis", time.Hour, clock)
	require.NoError(t, err)
	_, err = other.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = issuer.Verify(raw + "x")
	assert.ErrorIs(t, err, ErrInvalid)

	now = now.Add(2 * time.Hour)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour, nil)
	assert.Error(t, err)
}
