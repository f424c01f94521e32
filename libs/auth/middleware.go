package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey struct{}

// Verifier checks bearer tokens: RS256 tokens with a kid against the JWKS
// endpoint when one is configured, HS256 tokens with the shared secret.
type Verifier struct {
	secret string
	jwks   *JWKSClient
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: secret, jwks: jwks}
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	return parse(token, v.keyFunc(ctx), "RS256", "HS256")
}

func (v *Verifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		switch t.Method.Alg() {
		case "RS256":
			kid, _ := t.Header["kid"].(string)
			if v.jwks == nil || kid == "" {
				return nil, ErrKeyNotFound
			}
			return v.jwks.Get(ctx, kid)
		case "HS256":
			if v.secret == "" {
				return nil, ErrInvalidToken
			}
			return []byte(v.secret), nil
		default:
			return nil, ErrInvalidToken
		}
	}
}

// RequireStudio rejects requests without a valid bearer token bound to a
// studio and stores the claims on the request context.
func (v *Verifier) RequireStudio(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if !strings.HasPrefix(authHeader, "Bearer ") || token == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := v.Verify(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if strings.TrimSpace(claims.StudioID) == "" {
			http.Error(w, "token is not bound to a studio", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*Claims)
	return claims, ok && claims != nil
}
