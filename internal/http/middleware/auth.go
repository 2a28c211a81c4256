// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for endpoints that require
// a signed-in user. Access tokens are minted by the external auth provider;
// they are validated locally with the shared HS256 secret so the hot path
// never makes a network call.
//
// On success the middleware stores:
//   - "userID"    ← the token's `sub` claim
//   - "userEmail" ← the token's `email` claim (when present)
//
// in the Gin context for downstream handlers and the rate limiter key.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// userIDKey is the Gin context key for the authenticated user's id.
	userIDKey = "userID"
	// userEmailKey is the Gin context key for the authenticated user's email.
	userEmailKey = "userEmail"
)

// providerClaims is the claim set carried by provider-issued access tokens.
// Only the fields the service consumes are declared; everything else in the
// token is ignored.
type providerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// RequireAuth returns a Gin middleware that rejects requests without a valid
// provider-issued bearer token.
//
// Behavior:
//   - Missing or malformed Authorization header → 401.
//   - Wrong algorithm, bad signature, or expired token → 401.
//   - Token without a subject → 401.
//   - Otherwise the identity is stored in the context and the chain proceeds.
//
// Expiry (and nbf/iat, when present) are checked by the jwt library's
// default validator.
func RequireAuth(secret string) gin.HandlerFunc {
	key := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		claims := &providerClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, key,
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			unauthorized(c, "invalid or expired token")
			return
		}
		if claims.Subject == "" {
			unauthorized(c, "token has no subject")
			return
		}

		c.Set(userIDKey, claims.Subject)
		if claims.Email != "" {
			c.Set(userEmailKey, claims.Email)
		}
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header value.
// The scheme comparison is case-insensitive; surrounding whitespace is
// tolerated. Returns "" when the header is absent or not a bearer scheme.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// unauthorized aborts the request with the standard 401 envelope.
func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"error":      "unauthorized",
		"message":    msg,
	})
}
