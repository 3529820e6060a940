package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestAdminJWT_RoundTrip(t *testing.T) {
	token, exp, err := GenerateAdminJWT("ops@example.com", testSecret, time.Hour)
	require.NoError(t, err)
	assert.Greater(t, exp, time.Now().Unix())

	subject, err := ValidateAdminJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", subject)
}

func TestAdminJWT_WrongSecret(t *testing.T) {
	token, _, err := GenerateAdminJWT("ops@example.com", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ValidateAdminJWT(token, []byte("other-secret"))
	assert.Error(t, err)
}

func TestAdminJWT_Expired(t *testing.T) {
	token, _, err := GenerateAdminJWT("ops@example.com", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateAdminJWT(token, testSecret)
	assert.Error(t, err)
}

func TestAdminJWT_MissingRole(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "ops@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = ValidateAdminJWT(token, testSecret)
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestAdminJWT_Garbage(t *testing.T) {
	_, err := ValidateAdminJWT("not-a-jwt", testSecret)
	assert.Error(t, err)
}
