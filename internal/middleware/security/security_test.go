package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "script-src 'none'") {
		t.Fatalf("unexpected CSP %q", rec.Header().Get("Content-Security-Policy"))
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestNoStore(t *testing.T) {
	rec := httptest.NewRecorder()
	NoStore(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/charts/tax.png", nil))
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.9:1234", "", "", "203.0.113.9"},
		{"untrusted proxy ignored", "203.0.113.9:1234", "198.51.100.1", "", "203.0.113.9"},
		{"trusted proxy", "10.0.0.2:80", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"real ip fallback", "127.0.0.1:80", "garbage", "198.51.100.7", "198.51.100.7"},
		{"spoofed leftmost entry ignored", "10.0.0.2:80", "1.2.3.4, 198.51.100.1", "", "198.51.100.1"},
		{"trusted hops skipped", "10.0.0.2:80", "198.51.100.1, 192.168.1.4, 10.0.0.9", "", "198.51.100.1"},
		{"all hops trusted", "10.0.0.2:80", "10.0.0.5, 10.0.0.3", "", "10.0.0.5"},
		{"malformed hop", "10.0.0.2:80", "198.51.100.1, nonsense", "", "10.0.0.2"},
		{"no port", "198.51.100.3", "", "", "198.51.100.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Fatalf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(r); got != "203.0.113.9" {
		t.Fatalf("before: %q", got)
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatal(err)
	}
	if got := d.ExtractClientIP(r); got != "198.51.100.1" {
		t.Fatalf("after: %q", got)
	}
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Fatal("expected error for bad CIDR")
	}
}

func TestDetector(t *testing.T) {
	d := NewDetector()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	d.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tax?country=PH", nil))
	if rec.Code != http.StatusOK || d.SuspiciousCount() != 0 {
		t.Fatalf("clean request flagged: %d, %d", rec.Code, d.SuspiciousCount())
	}

	rec = httptest.NewRecorder()
	d.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.env", nil))
	if rec.Code != http.StatusOK || d.SuspiciousCount() != 1 {
		t.Fatalf("probe not counted: %d, %d", rec.Code, d.SuspiciousCount())
	}

	rec = httptest.NewRecorder()
	d.Middleware(next).ServeHTTP(rec, httptest.NewRequest("TRACE", "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("TRACE status %d", rec.Code)
	}
}
