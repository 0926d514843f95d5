package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthJWTRoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignJWT(secret, TokenClaims{
		Sub: "user-42",
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}

	var gotUser string
	handler := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/videos", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "user-42" {
		t.Fatalf("user id = %q, want user-42", gotUser)
	}
}

func TestAuthJWTRejections(t *testing.T) {
	secret := "test-secret"
	handler := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	expired, _ := SignJWT(secret, TokenClaims{Sub: "user-42", Exp: time.Now().Add(-time.Minute).Unix()})
	forged, _ := SignJWT("other-secret", TokenClaims{Sub: "user-42", Exp: time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "malformed token", header: "Bearer not.a.jwt"},
		{name: "expired token", header: "Bearer " + expired},
		{name: "forged signature", header: "Bearer " + forged},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/videos", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}
