package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	handler := CORS(CORSOptions{
		AllowedOrigins:   []string{" http://localhost:5173/ ", "https://app.example.com"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantMethods bool
	}{
		{"allowed simple request", http.MethodGet, "https://app.example.com", false, http.StatusTeapot, "https://app.example.com", false},
		{"trailing slash in config", http.MethodGet, "http://localhost:5173", false, http.StatusTeapot, "http://localhost:5173", false},
		{"allowed preflight", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent, "https://app.example.com", true},
		{"disallowed preflight", http.MethodOptions, "https://evil.example", true, http.StatusNoContent, "", false},
		{"disallowed simple request", http.MethodPost, "https://evil.example", false, http.StatusTeapot, "", false},
		{"plain OPTIONS reaches handler", http.MethodOptions, "https://app.example.com", false, http.StatusTeapot, "https://app.example.com", false},
		{"no origin", http.MethodGet, "", false, http.StatusTeapot, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/renders", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("expected allow-origin %q, got %q", tt.wantOrigin, got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods") != ""; got != tt.wantMethods {
				t.Errorf("expected allow-methods present=%v, got %v", tt.wantMethods, got)
			}
			if rec.Header().Get("Vary") != "Origin" {
				t.Errorf("expected Vary: Origin, got %q", rec.Header().Get("Vary"))
			}
			if tt.wantOrigin != "" {
				if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
					t.Error("expected credentials to be allowed")
				}
				if rec.Header().Get("Access-Control-Expose-Headers") != "Content-Disposition" {
					t.Errorf("expected exposed headers, got %q", rec.Header().Get("Access-Control-Expose-Headers"))
				}
			}
		})
	}
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	handler := CORS(CORSOptions{AllowedOrigins: []string{"*"}, AllowCredentials: true, MaxAgeSeconds: 120})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/renders", nil)
	req.Header.Set("Origin", "https://any.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example" {
		t.Errorf("expected origin to be echoed, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "120" {
		t.Errorf("expected max age 120, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("expected default methods, got %q", got)
	}
}
