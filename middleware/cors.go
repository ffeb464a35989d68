package middleware

import (
	"net/http"
	"os"
	"strings"
)

// defaultOrigins is used when CORS_ORIGINS is not set.
var defaultOrigins = []string{"http://localhost:3000"}

// CORSMiddleware answers preflight requests and sets the CORS headers for
// origins on the allow-list (CORS_ORIGINS, comma-separated).
func CORSMiddleware(next http.Handler) http.Handler {
	origins := defaultOrigins
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		origins = strings.Split(env, ",")
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
