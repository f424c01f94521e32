package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := NewClaims("artist-1", "studio-1", "owner", time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := NewVerifier(secret, nil).Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "artist-1" || parsed.StudioID != "studio-1" || parsed.Role != "owner" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestHS256Expired(t *testing.T) {
	token, err := SignHS256(NewClaims("artist-1", "studio-1", "owner", -time.Hour), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier("test-secret", nil).Verify(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "kid-1",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, NewClaims("user-2", "studio-2", "admin", time.Hour))
	tok.Header["kid"] = "kid-1"
	token, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("rs256 sign failed: %v", err)
	}

	v := NewVerifier("", NewJWKSClient(srv.URL, time.Minute))
	parsed, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-2" || parsed.StudioID != "studio-2" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	tok.Header["kid"] = "kid-unknown"
	other, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("rs256 sign failed: %v", err)
	}
	if _, err := v.Verify(context.Background(), other); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unknown kid to be rejected, got %v", err)
	}
}

func TestRequireStudio(t *testing.T) {
	v := NewVerifier("test-secret", nil)
	var seen *Claims
	h := v.RequireStudio(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	bound, err := SignHS256(NewClaims("artist-1", "studio-1", "", time.Hour), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	unbound, err := SignHS256(NewClaims("artist-1", "", "", time.Hour), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "no studio", header: "Bearer " + unbound, want: http.StatusForbidden},
		{name: "ok", header: "Bearer " + bound, want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
	if seen == nil || seen.StudioID != "studio-1" {
		t.Fatalf("claims not stored on context: %+v", seen)
	}
}
