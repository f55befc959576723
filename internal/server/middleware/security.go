package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/cors"
)

// SecurityHeaders adds security headers to all HTTP responses. HSTS is sent
// for TLS requests, and for every request when enableHSTS is set (TLS
// terminated at a reverse proxy).
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")

			if r.TLS != nil || enableHSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}

			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'; form-action 'self'")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=(), magnetometer=(), gyroscope=()")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Embedder-Policy", "require-corp")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// CORS returns rs/cors middleware that allows the given origins to call the
// query API. With no origins, cross-origin requests get no CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         3600,
	})
	if len(allowedOrigins) == 0 {
		c = cors.New(cors.Options{
			AllowOriginFunc: func(string) bool { return false },
		})
	}
	return c.Handler
}

// MaxRequestSize limits request bodies to maxBytes. Zero or negative
// disables the limit.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateAllowedOrigins validates and normalizes a comma separated list of
// CORS origins.
func ValidateAllowedOrigins(originsEnv string) ([]string, error) {
	if originsEnv == "" {
		return nil, nil
	}

	origins := strings.Split(originsEnv, ",")
	validated := make([]string, 0, len(origins))

	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			validated = append(validated, origin)
			continue
		}

		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("invalid origin URL %q: %w", origin, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("origin %q must include scheme and host (e.g., https://example.com)", origin)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("origin %q must use http or https scheme", origin)
		}
		if u.Path != "" && u.Path != "/" {
			return nil, fmt.Errorf("origin %q should not include path", origin)
		}

		validated = append(validated, fmt.Sprintf("%s://%s", u.Scheme, u.Host))
	}

	return validated, nil
}
