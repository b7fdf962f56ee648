package http

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the API. "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// AllowedMethods is sent in preflight responses.
	AllowedMethods []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`

	// AllowedHeaders is sent in preflight responses.
	AllowedHeaders []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`

	// MaxAge is how long, in seconds, browsers may cache a preflight.
	MaxAge int `mapstructure:"max_age" yaml:"max_age" validate:"min=0"`
}

// DefaultCORSConfig allows any origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With", "X-Request-ID"},
		MaxAge:         3600,
	}
}

func (c CORSConfig) allowOrigin(origin string) string {
	if slices.Contains(c.AllowedOrigins, "*") {
		return "*"
	}
	if slices.Contains(c.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

// corsMiddleware sets CORS headers on requests carrying an Origin and
// answers preflight requests itself. An empty AllowedOrigins disables it.
func corsMiddleware(c CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(c.AllowedMethods, ", ")
	headers := strings.Join(c.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(c.MaxAge)

	return func(next http.Handler) http.Handler {
		if len(c.AllowedOrigins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := c.allowOrigin(origin)
			h := w.Header()
			h.Add("Vary", "Origin")
			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				h.Set("Access-Control-Expose-Headers", "Content-Disposition, Content-Length, X-Request-ID")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed != "" {
					h.Set("Access-Control-Allow-Methods", methods)
					h.Set("Access-Control-Allow-Headers", headers)
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
