package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	checks := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for header, want := range checks {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestMaxJSONBody_RejectsOversize(t *testing.T) {
	h := MaxJSONBody(16)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestMaxJSONBody_RejectsBeforeHandler(t *testing.T) {
	called := false
	h := MaxJSONBody(16)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	// A handler that never reads the body must still not see an oversize
	// request with a declared length.
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatal("handler ran for oversize request")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestMaxJSONBody_PassesSmall(t *testing.T) {
	h := MaxJSONBody(1024)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"action":"browser_state"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTraceID_SetsHeader(t *testing.T) {
	var sawLogger bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetLogger(r.Context()) != nil {
			sawLogger = true
		}
	})
	rec := httptest.NewRecorder()
	TraceID(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", nil))

	id := rec.Header().Get("X-Trace-ID")
	if len(id) != 8 {
		t.Fatalf("X-Trace-ID = %q, want 8 hex chars", id)
	}
	if !sawLogger {
		t.Fatal("per-request logger not injected")
	}
}

func TestRateLimiter_Blocks(t *testing.T) {
	rl := NewRateLimiter(Rule{MaxRequests: 2, WindowSeconds: 60})
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/execute", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/execute", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimiter_Excluded(t *testing.T) {
	rl := NewRateLimiter(Rule{MaxRequests: 1, WindowSeconds: 60}, "/healthz")
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("excluded path limited at request %d", i)
		}
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(Rule{MaxRequests: 1, WindowSeconds: 60})
	h := rl.Middleware(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/execute", nil)
	first.RemoteAddr = "10.0.0.3:1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatal("first IP first request should pass")
	}

	other := httptest.NewRequest(http.MethodPost, "/execute", nil)
	other.RemoteAddr = "10.0.0.4:1"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatal("second IP should have its own bucket")
	}
}

func TestBearerAuth(t *testing.T) {
	hash, err := HashKey("sekret")
	if err != nil {
		t.Fatal(err)
	}
	h := BearerAuth([]string{hash}, "/healthz")(okHandler())

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid key", "/execute", "Bearer sekret", http.StatusOK},
		{"wrong key", "/execute", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "/execute", "", http.StatusUnauthorized},
		{"excluded path", "/healthz", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"remote addr", "192.0.2.1:5000", "", "192.0.2.1"},
		{"xff single", "10.0.0.1:1", "203.0.113.9", "203.0.113.9"},
		{"xff chain", "10.0.0.1:1", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ExtractIP(req); got != tt.want {
				t.Fatalf("ExtractIP = %q, want %q", got, tt.want)
			}
		})
	}
}
