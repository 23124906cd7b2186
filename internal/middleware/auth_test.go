package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthStoreRoundTrip(t *testing.T) {
	secret := "embed-secret"
	token, err := SignStoreToken(secret, StoreClaims{
		StoreID: "store-1",
		Plan:    "growth",
		Exp:     time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var gotStore string
	handler := AuthStore(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStore = StoreIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotStore != "store-1" {
		t.Fatalf("store id = %q, want store-1", gotStore)
	}
}

func TestAuthStoreRejects(t *testing.T) {
	handler := AuthStore("embed-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"missing header", func(r *http.Request) {}},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") }},
		{"wrong secret", func(r *http.Request) {
			token, _ := SignStoreToken("other-secret", StoreClaims{StoreID: "store-1"})
			r.Header.Set("Authorization", "Bearer "+token)
		}},
		{"expired", func(r *http.Request) {
			token, _ := SignStoreToken("embed-secret", StoreClaims{StoreID: "store-1", Exp: time.Now().Add(-time.Minute).Unix()})
			r.Header.Set("Authorization", "Bearer "+token)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/compositions", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAuthStoreDisabledWithoutSecret(t *testing.T) {
	handler := AuthStore("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/compositions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want auth bypassed", rec.Code)
	}
}
