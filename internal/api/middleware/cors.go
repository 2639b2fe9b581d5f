package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORSPolicy describes which browser origins may call the API.
type CORSPolicy struct {
	Origins []string // empty allows any origin
	Methods []string
	Headers []string
	MaxAge  string
}

func (p CORSPolicy) allowedOrigin(origin string) string {
	if len(p.Origins) == 0 {
		return "*"
	}
	if origin != "" && slices.Contains(p.Origins, origin) {
		return origin
	}
	return ""
}

// CORS sets the Access-Control headers for allowed origins and answers
// preflight requests with 204.
func CORS(p CORSPolicy) func(http.Handler) http.Handler {
	methods := strings.Join(p.Methods, ", ")
	headers := strings.Join(p.Headers, ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allow := p.allowedOrigin(r.Header.Get("Origin")); allow != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allow)
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				if p.MaxAge != "" {
					h.Set("Access-Control-Max-Age", p.MaxAge)
				}
				if allow != "*" {
					h.Add("Vary", "Origin")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
