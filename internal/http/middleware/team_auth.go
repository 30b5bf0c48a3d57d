package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zapdeskhq/zapbot-platform/internal/tenancy"
)

type contextKey string

const teamClaimsKey contextKey = "teamClaims"

// TeamClaims carries the tenant and agent identity inside team panel
// tokens.
type TeamClaims struct {
	AccountID string `json:"account_id"`
	AgentID   string `json:"agent_id"`
	jwt.RegisteredClaims
}

// TeamJWT enforces an HMAC-signed JWT for team panel endpoints and
// binds the token's account to the request context.
func TeamJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "team auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := &TeamClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.AccountID == "" {
				http.Error(w, "token missing account", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), teamClaimsKey, *claims)
			ctx = tenancy.WithAccountID(ctx, claims.AccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TeamClaimsFromContext returns team JWT claims if present.
func TeamClaimsFromContext(ctx context.Context) (TeamClaims, bool) {
	claims, ok := ctx.Value(teamClaimsKey).(TeamClaims)
	return claims, ok
}
