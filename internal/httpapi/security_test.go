package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dokkan/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}
	for header, expected := range want {
		if got := res.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}
	if res.Header().Get("Referrer-Policy") == "" {
		t.Error("Referrer-Policy header missing")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	attempt := func() int {
		body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.9.8.7:40001"
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)
		return res.Code
	}

	for i := 0; i < 5; i++ {
		if code := attempt(); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: got %d, want 401 while under the limit", i+1, code)
		}
	}
	if code := attempt(); code != http.StatusTooManyRequests {
		t.Fatalf("got %d after exhausting attempts, want 429", code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	oversized := fmt.Sprintf(`{"username":%q,"password":"x"}`, strings.Repeat("a", (1<<20)+512))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(oversized))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("got %d for oversized body, want 400", res.Code)
	}
}

func TestManagerPINRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	wrongPIN := func() int {
		body, _ := json.Marshal(domain.SalesReturnRequest{
			SaleID:     "sale-nonexistent",
			Lines:      []domain.ReturnLineRequest{{ProductID: "prod-charger-25w", Qty: 1}},
			ManagerPIN: "000000",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/returns", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		req.RemoteAddr = "10.9.8.7:40002"
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)
		return res.Code
	}

	for i := 0; i < 8; i++ {
		if code := wrongPIN(); code != http.StatusForbidden {
			t.Fatalf("attempt %d: got %d, want 403 while under the PIN limit", i+1, code)
		}
	}
	if code := wrongPIN(); code != http.StatusTooManyRequests {
		t.Fatalf("got %d after exhausting PIN attempts, want 429", code)
	}
}

func TestMutationRejectsForgedCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	body, _ := json.Marshal(domain.ExpenseRequest{Description: "ink", AmountCents: 5000})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", "not-a-real-token")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("got %d with forged CSRF token, want 403", res.Code)
	}
}

func TestParsePositiveLimit(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"9999", 200},
		{"25", 25},
		{"", 50},
		{"0", 50},
		{"-3", 50},
		{"invalid", 50},
	}
	for _, tc := range cases {
		if got := parsePositiveLimit(tc.raw, 50, 200); got != tc.want {
			t.Errorf("parsePositiveLimit(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint: status %d", res.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf-token response: %v", err)
	}
	if payload["csrf_token"] == "" {
		t.Fatal("empty csrf_token in response")
	}
	return payload["csrf_token"]
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "admin123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("admin login: status %d", res.Code)
	}
	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatal("empty access token in login response")
	}
	return payload.AccessToken
}
