package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractRealClientAddr(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		hops   int
		want   string
	}{
		{"public peer ignores xff", "203.0.113.5:4000", "198.51.100.1", 1, "203.0.113.5"},
		{"private peer, no hops", "10.0.0.2:4000", "198.51.100.1", 0, "10.0.0.2"},
		{"private peer, one hop", "10.0.0.2:4000", "1.1.1.1, 198.51.100.1", 1, "198.51.100.1"},
		{"private peer, two hops", "10.0.0.2:4000", "1.1.1.1, 198.51.100.1, 10.0.0.9", 2, "198.51.100.1"},
		{"too few entries fails closed", "10.0.0.2:4000", "198.51.100.1", 3, "10.0.0.2"},
		{"garbage entry ignored", "10.0.0.2:4000", "not-an-ip", 1, "10.0.0.2"},
		{"loopback peer behind local proxy", "127.0.0.1:4000", "198.51.100.7", 1, "198.51.100.7"},
		{"no port", "203.0.113.5", "", 0, "203.0.113.5"},
		{"empty", "", "", 0, "0.0.0.0"},
		{"malformed host", "nope:80", "", 0, "0.0.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractRealClientAddr(r, tt.hops); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractRealClientAddr_StripsUntrustedHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:4000"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.Header.Set("X-Forwarded-Proto", "https")

	extractRealClientAddr(r, 1)

	if r.Header.Get("X-Forwarded-For") != "" || r.Header.Get("X-Forwarded-Proto") != "" {
		t.Fatal("forwarded headers from a public peer should be removed")
	}
}

func TestClientIPWithOptions_StoresInContext(t *testing.T) {
	var got string
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.20")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != "198.51.100.20" {
		t.Fatalf("client ip = %q", got)
	}
}

func TestWithClientIP_EmptyIsNoop(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithClientIP(r.Context(), "")
	if ClientIPFromContext(ctx) != "" {
		t.Fatal("empty ip should not be stored")
	}
}
