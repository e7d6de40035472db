package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens, err := NewEditTokens("supersecuresecret", time.Hour)
	require.NoError(t, err)

	token, err := tokens.Issue("biz-1")
	require.NoError(t, err)
	require.NoError(t, tokens.Verify(token, "biz-1"))
	assert.ErrorIs(t, tokens.Verify(token, "biz-2"), ErrBusinessMismatch)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	tokens, err := NewEditTokens("supersecuresecret", time.Minute)
	require.NoError(t, err)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	token, err := tokens.Issue("biz-1")
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	assert.ErrorIs(t, tokens.Verify(token, "biz-1"), jwtlib.ErrTokenExpired)

	other, err := NewEditTokens("anothersecretvalue", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue("biz-1")
	require.NoError(t, err)
	tokens.now = time.Now
	assert.ErrorIs(t, tokens.Verify(foreign, "biz-1"), jwtlib.ErrTokenSignatureInvalid)

	assert.Error(t, tokens.Verify("not-a-token", "biz-1"))
}

func TestNewEditTokensRequiresSecret(t *testing.T) {
	_, err := NewEditTokens("short", time.Hour)
	require.Error(t, err)
}
