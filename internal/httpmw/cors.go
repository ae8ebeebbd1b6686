package httpmw

import (
	"net/http"
	"strings"
)

// CORSOptions configures CORS. Zero values mean: any origin, GET/POST/OPTIONS,
// Content-Type header, and Retry-After plus the correlation ids exposed.
type CORSOptions struct {
	AllowOrigin   string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
}

type corsHeaders struct {
	origin, methods, headers, expose string
}

func (o CORSOptions) resolve() corsHeaders {
	c := corsHeaders{origin: o.AllowOrigin}
	if c.origin == "" {
		c.origin = "*"
	}
	methods := o.AllowMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := o.AllowHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type"}
	}
	expose := o.ExposeHeaders
	if len(expose) == 0 {
		// browsers hide these from scripts unless exposed
		expose = []string{"Retry-After", "X-Request-Id", "X-Trace-Id"}
	}
	c.methods = strings.Join(methods, ", ")
	c.headers = strings.Join(headers, ", ")
	c.expose = strings.Join(expose, ", ")
	return c
}

func (c corsHeaders) set(h http.Header) {
	h.Set("Access-Control-Allow-Origin", c.origin)
	h.Set("Access-Control-Allow-Methods", c.methods)
	h.Set("Access-Control-Allow-Headers", c.headers)
	h.Set("Access-Control-Expose-Headers", c.expose)
}

// CORSHeaders sets CORS headers and always calls next. Mounted outside
// handlers that answer on their own (the per-IP guard, JSON 404/405) it
// keeps those responses readable from a browser.
func CORSHeaders(opts CORSOptions) func(http.Handler) http.Handler {
	c := opts.resolve()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.set(w.Header())
			next.ServeHTTP(w, r)
		})
	}
}

// CORS sets CORS headers on every response and answers OPTIONS preflight
// requests with 200 and an empty body without calling next.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	c := opts.resolve()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.set(w.Header())
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
