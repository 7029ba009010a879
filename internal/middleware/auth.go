package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// AdminAuth returns a middleware that admits requests carrying
// "Authorization: Bearer <token>". An empty token locks the routes.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				log.Warn("ADMIN_API_TOKEN is not set, rejecting admin request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Authorization header format must be 'Bearer <token>'", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
				log.WithField("path", r.URL.Path).Warn("invalid admin token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
