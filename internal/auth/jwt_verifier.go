package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"prophub/internal/domain"
	"prophub/internal/domain/models"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// SupabaseJWTVerifier implements TokenVerifier using JWKS from Supabase.
type SupabaseJWTVerifier struct {
	jwks   keyfunc.Keyfunc
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewJWTVerifier creates a verifier that fetches public keys from Supabase's JWKS endpoint.
// keyfunc caches the keys and refreshes them in the background.
func NewJWTVerifier(jwksURL string, logger *slog.Logger) (*SupabaseJWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	return &SupabaseJWTVerifier{
		jwks:   jwks,
		cancel: cancel,
		logger: logger,
	}, nil
}

// VerifyToken validates a JWT and extracts Supabase claims.
func (v *SupabaseJWTVerifier) VerifyToken(tokenString string) (*models.SupabaseClaims, error) {
	// Prevent algorithm confusion attacks - allow only RS256 or ES256
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "ES256"}))

	claims := &models.SupabaseClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil || !token.Valid {
		v.logger.Debug("token rejected", "error", err)
		return nil, domain.ErrUnauthorized
	}

	if !checkClaims(claims) {
		v.logger.Warn("token has invalid claims",
			"role", claims.Role,
			"user_id", claims.Subject,
			"is_anonymous", claims.IsAnonymous,
		)
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}

// Close stops the JWKS background refresh
func (v *SupabaseJWTVerifier) Close() error {
	v.cancel()
	v.logger.Info("JWT verifier closed")
	return nil
}
