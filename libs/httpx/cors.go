package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsHeaders struct {
	origins     []string
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

// WithCORS answers preflight requests for the studio web app. An empty
// AllowedOrigins list disables it.
func WithCORS(cfg CORSPolicy) Middleware {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	h := corsHeaders{
		origins:     normalizeList(cfg.AllowedOrigins),
		methods:     strings.Join(normalizeList(cfg.AllowedMethods), ", "),
		headers:     strings.Join(normalizeList(cfg.AllowedHeaders), ", "),
		credentials: cfg.AllowCredentials,
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		h.maxAge = strconv.Itoa(secs)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowOrigin, ok := h.match(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h.write(w.Header(), allowOrigin)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h corsHeaders) write(dst http.Header, allowOrigin string) {
	dst.Set("Access-Control-Allow-Origin", allowOrigin)
	if h.credentials {
		dst.Set("Access-Control-Allow-Credentials", "true")
	}
	if h.methods != "" {
		dst.Set("Access-Control-Allow-Methods", h.methods)
	}
	if h.headers != "" {
		dst.Set("Access-Control-Allow-Headers", h.headers)
	}
	if h.maxAge != "" {
		dst.Set("Access-Control-Max-Age", h.maxAge)
	}
	dst.Add("Vary", "Origin")
}

// match returns the value for Access-Control-Allow-Origin. A wildcard is
// echoed back as the concrete origin when credentials are allowed.
func (h corsHeaders) match(origin string) (string, bool) {
	for _, candidate := range h.origins {
		if candidate == "*" {
			if h.credentials {
				return origin, true
			}
			return "*", true
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
