package auth

import (
	"errors"
	"time"

	"prophub/internal/domain"
	"prophub/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier validates HS256 tokens signed with a shared secret.
// Used with the memory session backend and by local tooling.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given secret
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

func (v *HMACVerifier) VerifyToken(tokenString string) (*models.SupabaseClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &models.SupabaseClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid || !checkClaims(claims) {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Sign issues an authenticated token for userID, valid for ttl
func (v *HMACVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  "authenticated",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *HMACVerifier) Close() error {
	return nil
}
