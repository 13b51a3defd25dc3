package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(t *testing.T, wantSubject bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := SubjectFromContext(r.Context()) != nil; got != wantSubject {
			t.Errorf("subject present = %v, want %v", got, wantSubject)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestMiddlewareDisabledWithoutTokens(t *testing.T) {
	h := NewService([]string{" ", ""}).Middleware(MiddlewareConfig{})(okHandler(t, false))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestMiddlewareChecksBearerToken(t *testing.T) {
	svc := NewService([]string{"s3cr3t"})
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cr3t", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer s3cr3t", http.StatusNoContent},
		{"case insensitive scheme", "bearer s3cr3t", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := svc.Middleware(MiddlewareConfig{})(okHandler(t, tc.want == http.StatusNoContent))
			req := httptest.NewRequest(http.MethodPost, "/run", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestMiddlewarePublicPaths(t *testing.T) {
	h := NewService([]string{"s3cr3t"}).Middleware(MiddlewareConfig{Public: map[string]bool{"/health": true}})(okHandler(t, false))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("public path should bypass auth, got %d", rec.Code)
	}
}

func TestCustomDenyReceivesError(t *testing.T) {
	var got error
	h := NewService([]string{"s3cr3t"}).Middleware(MiddlewareConfig{
		Deny: func(w http.ResponseWriter, _ *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		},
	})(okHandler(t, false))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	if rec.Code != http.StatusTeapot || got != ErrMissingToken {
		t.Fatalf("unexpected deny: %d %v", rec.Code, got)
	}
}
