package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller identity issued by the account service. StudioID
// scopes every appointment read and write.
type Claims struct {
	jwt.RegisteredClaims
	StudioID string `json:"studio_id"`
	Role     string `json:"role"`
}

const clockSkew = 30 * time.Second

// NewClaims builds claims for subject valid for ttl from now.
func NewClaims(subject, studioID, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		StudioID: studioID,
		Role:     role,
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parse(token string, keyFunc jwt.Keyfunc, methods ...string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
