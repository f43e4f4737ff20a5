package middleware

import (
	"net/http"
)

// CORS header values shared by every API route.
const (
	AllowOrigin  = "*"
	AllowHeaders = "Content-Type, Range"
	MaxAge       = "86400"
)

// ProxyMethods are the methods the proxy routes answer to.
const ProxyMethods = "GET, HEAD, OPTIONS"

// APIMethods are the methods the management API answers to.
const APIMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// CORS sets the cross-origin headers and answers preflight requests with 204.
func CORS(methods string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", AllowOrigin)
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", AllowHeaders)
			h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Max-Age", MaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next(w, r)
		}
	}
}

// NoCache marks the response as uncacheable by players and intermediaries.
func NoCache(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		next(w, r)
	}
}
