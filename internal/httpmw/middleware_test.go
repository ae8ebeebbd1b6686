package httpmw

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler, mw("outer"), nil, mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "outer,inner" {
		t.Fatalf("order = %v, want outer,inner", order)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name, incoming string
		kept           bool
	}{
		{"none", "", false},
		{"equals sign", "Root=1-67891233-abcdef0123456789", false},
		{"plain token", "lb-7f3a.0001_x", true},
		{"newline injection", "abc\nlevel=ERROR", false},
		{"spaces", "abc def", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"at limit", strings.Repeat("a", maxRequestIDLen), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/contracts", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-Id", tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if tt.kept && seen != tt.incoming {
				t.Fatalf("id = %q, want %q kept", seen, tt.incoming)
			}
			if !tt.kept && (seen == tt.incoming || len(seen) != 32) {
				t.Fatalf("id = %q, want a fresh 32 char id", seen)
			}
			if rec.Header().Get("X-Request-Id") != seen {
				t.Fatal("response header should echo the id in use")
			}
		})
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "too big", http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, small)
	if rec.Code != http.StatusOK {
		t.Fatalf("small body: got %d", rec.Code)
	}

	declared := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, declared)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("declared large body: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Request body too large") {
		t.Fatalf("body = %q", rec.Body.String())
	}

	// unknown length is caught while reading
	chunked := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
	chunked.ContentLength = -1
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, chunked)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("streamed large body: got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":       "nosniff",
		"X-Frame-Options":              "DENY",
		"Cache-Control":                "no-store",
		"Cross-Origin-Resource-Policy": "cross-origin",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestCORS_Preflight(t *testing.T) {
	var reached bool
	h := CORS(CORSOptions{AllowMethods: []string{"POST", "OPTIONS"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/mint", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight body = %q, want empty", rec.Body.String())
	}
	if reached {
		t.Fatal("preflight must not reach the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestCORS_HeadersOnNormalRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS(CORSOptions{AllowOrigin: "https://demo.example"})(okHandler).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://demo.example" {
		t.Fatalf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Fatalf("Allow-Methods = %q", got)
	}
}

func TestCORSHeaders_DoesNotAnswerPreflight(t *testing.T) {
	var reached bool
	h := CORSHeaders(CORSOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/mint", nil))
	if !reached || rec.Code != http.StatusTooManyRequests {
		t.Fatalf("reached=%v status=%d, want the inner handler to answer", reached, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "Retry-After, X-Request-Id, X-Trace-Id" {
		t.Fatalf("Expose-Headers = %q", got)
	}
}

func TestTraceResponseHeaders(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	tests := []struct {
		name  string
		flags trace.TraceFlags
		want  string
	}{
		{"sampled", trace.FlagsSampled, tid.String()},
		{"unsampled", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: tt.flags})
			req := httptest.NewRequest(http.MethodPost, "/api/mint", nil)
			req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))
			rec := httptest.NewRecorder()
			TraceResponseHeaders("", "")(okHandler).ServeHTTP(rec, req)

			if got := rec.Header().Get("X-Trace-Id"); got != tt.want {
				t.Fatalf("X-Trace-Id = %q, want %q", got, tt.want)
			}
		})
	}

	rec := httptest.NewRecorder()
	TraceResponseHeaders("", "")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Trace-Id") != "" {
		t.Fatal("no span, no header")
	}
}

func TestAnnotateHTTPRoute_RenamesSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	r := chi.NewRouter()
	r.Use(AnnotateHTTPRoute)
	r.Post("/api/mint", func(w http.ResponseWriter, r *http.Request) {})

	ctx, span := tp.Tracer("test").Start(context.Background(), "server")
	req := httptest.NewRequest(http.MethodPost, "/api/mint", nil).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Name() != "POST /api/mint" {
		t.Fatalf("span name = %q, want POST /api/mint", ended[0].Name())
	}
}

func TestAnnotateHTTPRoute_Unmatched(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	r := chi.NewRouter()
	r.Use(AnnotateHTTPRoute)
	r.Post("/api/mint", func(w http.ResponseWriter, r *http.Request) {})

	ctx, span := tp.Tracer("test").Start(context.Background(), "server")
	req := httptest.NewRequest(http.MethodGet, "/.git/config", nil).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)
	span.End()

	got := sr.Ended()[0]
	if got.Name() != "GET unmatched" {
		t.Fatalf("span name = %q, want GET unmatched", got.Name())
	}
	for _, kv := range got.Attributes() {
		if kv.Key == "http.route" {
			t.Fatalf("unmatched request carries http.route=%q", kv.Value.AsString())
		}
	}
}

func TestRoutePattern(t *testing.T) {
	var inside string
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/mint", func(_ http.ResponseWriter, r *http.Request) { inside = RoutePattern(r) })
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/mint", nil))
	if inside != "/api/mint" {
		t.Fatalf("pattern = %q, want /api/mint", inside)
	}
	if got := RoutePattern(httptest.NewRequest(http.MethodGet, "/api/mint", nil)); got != UnmatchedRoute {
		t.Fatalf("no route context = %q, want %q", got, UnmatchedRoute)
	}
}
