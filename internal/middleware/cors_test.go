package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsRequest(t *testing.T, m *CORSMiddleware, origin string) *httptest.ResponseRecorder {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/relay/public", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(resp, req)
	return resp
}

func TestCORSExactOriginMatch(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://app.example.com"})

	resp := corsRequest(t, m, "https://app.example.com")
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}

	// A lookalike host sharing the allowed origin as a suffix is not allowed.
	for _, origin := range []string{
		"https://evil-app.example.com",
		"https://app.example.com.evil.io",
		"https://notapp.example.com",
	} {
		resp := corsRequest(t, m, origin)
		if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("%s: allow-origin = %q, want none", origin, got)
		}
	}
}

func TestCORSWildcardSubdomains(t *testing.T) {
	m := NewCORSMiddleware([]string{"*.example.com"})

	resp := corsRequest(t, m, "https://app.example.com")
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}

	for _, origin := range []string{
		"https://evil-example.com",
		"https://evilexample.com",
	} {
		resp := corsRequest(t, m, origin)
		if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("%s: allow-origin = %q, want none", origin, got)
		}
	}
}

func TestCORSAllowAllAndPreflight(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})

	resp := corsRequest(t, m, "https://anywhere.io")
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.io" {
		t.Fatalf("allow-origin = %q", got)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	})
	req := httptest.NewRequest(http.MethodOptions, "/relay/public", nil)
	req.Header.Set("Origin", "https://anywhere.io")
	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
}
