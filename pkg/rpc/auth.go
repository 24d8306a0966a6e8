package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nexusd/nexuscore/pkg/config"
)

// Claims are the JWT claims nexusd expects from an externally-issued
// bearer token. nexusd verifies tokens minted by the control plane; it
// never issues its own, so there is no login/refresh flow here.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against RPCConfig.JWT.
type Verifier struct {
	cfg config.JWTConfig
}

// NewVerifier returns a Verifier for cfg.
func NewVerifier(cfg config.JWTConfig) *Verifier {
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &Verifier{cfg: cfg}
}

// Verify validates tokenString's signature, issuer, and expiry.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(v.cfg.Secret), nil
	}, jwt.WithIssuer(v.cfg.Issuer), jwt.WithLeeway(v.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type contextKey string

const claimsContextKey contextKey = "nexusd_claims"

// ClaimsFromContext retrieves the verified claims for the current request,
// or nil if called outside jwtAuth middleware.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// jwtAuth is middleware that validates a Bearer token against v and stores
// its claims in the request context. Requests with a missing or invalid
// token are rejected with 401 before reaching any RPC handler.
func jwtAuth(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "Authorization header required")
				return
			}
			claims, err := v.Verify(tokenString)
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
