package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz(t *testing.T) {
	failing := func(context.Context) error { return errors.New("down") }
	healthy := func(context.Context) error { return nil }

	cases := []struct {
		name   string
		checks []ReadyCheck
		want   int
	}{
		{name: "no checks", want: http.StatusOK},
		{name: "healthy", checks: []ReadyCheck{{Name: "db", Check: healthy}}, want: http.StatusOK},
		{name: "required down", checks: []ReadyCheck{{Name: "db", Check: failing}}, want: http.StatusServiceUnavailable},
		{name: "optional down", checks: []ReadyCheck{{Name: "db", Check: healthy}, {Name: "kafka", Check: failing, Optional: true}}, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := NewBaseMuxWithReady(tc.checks...)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
