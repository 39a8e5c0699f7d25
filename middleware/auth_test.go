package middleware

import (
	"car-management/handlers/auth"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthJWT(t *testing.T) {
	tokens := auth.NewTokens("access-secret", "refresh-secret", time.Hour, time.Hour)
	pair, err := tokens.IssuePair("user-1")
	if err != nil {
		t.Fatalf("IssuePair() failed: %v", err)
	}

	var gotCaller string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller, _ = CallerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := AuthJWT(tokens)(next)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + pair.AccessToken, http.StatusNoContent},
		{"lower-case scheme", "bearer " + pair.AccessToken, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + pair.AccessToken, http.StatusUnauthorized},
		{"no token", "Bearer", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}
	for _, c := range cases {
		gotCaller = ""
		req := httptest.NewRequest(http.MethodGet, "/api/cars", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != c.want {
			t.Errorf("%s: status code mismatch: got %d, want %d", c.name, rec.Code, c.want)
		}
		if c.want == http.StatusNoContent && gotCaller != "user-1" {
			t.Errorf("%s: CallerID() = %q, want %q", c.name, gotCaller, "user-1")
		}
	}
}

func TestCallerID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id, ok := CallerID(req.Context()); ok || id != "" {
		t.Errorf("CallerID() without claims = %q, %v", id, ok)
	}
}
