package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminAuth protects routes with HTTP basic auth when password is set.
// password may be plain text or a bcrypt hash. An empty password allows
// all requests (local single-user setup). Any username is accepted.
func AdminAuth(password string) func(next http.Handler) http.Handler {
	check := passwordChecker(password)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if ok && check(pass) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="Command Center"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "admin authentication required", "code": "admin_auth"}`))
		})
	}
}

// IsBcryptHash reports whether s looks like a bcrypt hash.
func IsBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func passwordChecker(password string) func(string) bool {
	if IsBcryptHash(password) {
		hash := []byte(password)
		return func(given string) bool {
			return bcrypt.CompareHashAndPassword(hash, []byte(given)) == nil
		}
	}
	return func(given string) bool {
		return subtle.ConstantTimeCompare([]byte(given), []byte(password)) == 1
	}
}
