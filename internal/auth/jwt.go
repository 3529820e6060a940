package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AdminRole is the role claim required for admin endpoints
const AdminRole = "admin"

var (
	// ErrNotAdmin is returned when a valid token lacks the admin role
	ErrNotAdmin = errors.New("token does not carry admin role")
)

// GenerateAdminJWT creates a short-lived admin token
func GenerateAdminJWT(subject string, secret []byte, ttl time.Duration) (string, int64, error) {
	expirationTime := time.Now().Add(ttl).Unix()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": AdminRole,
		"exp":  expirationTime,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}
	return signedToken, expirationTime, nil
}

// ValidateAdminJWT verifies the token signature and the admin role
// claim, returning the subject.
func ValidateAdminJWT(tokenString string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}

	role, _ := claims["role"].(string)
	if role != AdminRole {
		return "", ErrNotAdmin
	}

	subject, _ := claims["sub"].(string)
	return subject, nil
}
