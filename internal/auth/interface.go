package auth

import "prophub/internal/domain/models"

// TokenVerifier validates bearer tokens issued by Supabase Auth.
// The auth middleware depends only on this interface.
type TokenVerifier interface {
	// VerifyToken validates a token string and returns its claims.
	// Returns domain.ErrUnauthorized for any invalid, expired or anonymous token.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	// Close releases resources held by the verifier
	Close() error
}

// checkClaims applies the claim rules shared by every verifier
func checkClaims(claims *models.SupabaseClaims) bool {
	// "authenticated" is the Postgres role, the app role lives on the profile
	return claims.Subject != "" && claims.Role == "authenticated" && !claims.IsAnonymous
}
