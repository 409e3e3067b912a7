// Package httpkit holds small HTTP helpers shared by the API handlers.
package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// ExposedHeaders lets browser clients read e.g. Content-Disposition
	// on PDF downloads.
	ExposedHeaders []string
	// AllowCredentials lets the session cookie ride along. A "*" origin
	// then matches every origin but is always echoed back verbatim.
	AllowCredentials bool
	MaxAgeSeconds    int
}

type corsPolicy struct {
	origins     map[string]struct{}
	anyOrigin   bool
	methods     string
	headers     string
	exposed     string
	credentials bool
	maxAge      string
}

func newCORSPolicy(opt CORSOptions) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]struct{}),
		methods:     "GET, POST, OPTIONS",
		headers:     "Content-Type, Authorization, X-Request-ID",
		exposed:     strings.Join(trimAll(opt.ExposedHeaders), ", "),
		credentials: opt.AllowCredentials,
		maxAge:      "600",
	}
	for _, o := range trimAll(opt.AllowedOrigins) {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	if m := trimAll(opt.AllowedMethods); len(m) > 0 {
		p.methods = strings.Join(m, ", ")
	}
	if h := trimAll(opt.AllowedHeaders); len(h) > 0 {
		p.headers = strings.Join(h, ", ")
	}
	if opt.MaxAgeSeconds > 0 {
		p.maxAge = strconv.Itoa(opt.MaxAgeSeconds)
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// CORS answers preflight requests and decorates responses for allowed
// origins. Disallowed origins get no CORS headers; the browser enforces
// the rest.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	p := newCORSPolicy(opt)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			allowed := p.allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if p.exposed != "" {
					h.Set("Access-Control-Expose-Headers", p.exposed)
				}
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			if allowed {
				h.Set("Access-Control-Allow-Methods", p.methods)
				h.Set("Access-Control-Allow-Headers", p.headers)
				h.Set("Access-Control-Max-Age", p.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
