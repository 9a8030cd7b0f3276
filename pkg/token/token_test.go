package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	Configure("unit-test-secret", time.Minute)

	tok, err := GenerateJWT("u-1", string(RoleUser), "direct_chat_service")
	require.NoError(t, err)

	claims, err := ParseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, string(RoleUser), claims.Role)
	assert.Equal(t, "direct_chat_service", claims.Issuer)
}

func TestParseJWT_Rejects(t *testing.T) {
	Configure("unit-test-secret", time.Minute)

	t.Run("wrong secret", func(t *testing.T) {
		other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u-1"})
		tok, err := other.SignedString([]byte("another-secret"))
		require.NoError(t, err)

		_, err = ParseJWT(tok)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID: "u-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		})
		tok, err := expired.SignedString([]byte("unit-test-secret"))
		require.NoError(t, err)

		_, err = ParseJWT(tok)
		assert.Error(t, err)
	})

	t.Run("missing user", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("unit-test-secret"))
		require.NoError(t, err)

		_, err = ParseJWT(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseJWT("not-a-token")
		assert.Error(t, err)
	})
}
