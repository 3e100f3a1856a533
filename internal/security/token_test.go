package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("s3cret", "user-42", []string{"media:write"}, time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, []string{"media:write"}, claims.Scopes)

	_, err = ParseAccessToken(token, "other")
	assert.Error(t, err)
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := GenerateAccessToken("s3cret", "user-42", nil, -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "s3cret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestAccessTokenSubjectFallback(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "user-7", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	parsed, err := ParseAccessToken(signed, "k")
	require.NoError(t, err)
	assert.Equal(t, "user-7", parsed.UserID)
}
