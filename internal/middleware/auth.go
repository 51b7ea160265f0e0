package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	SessionCookie = "session"
	LoginPath     = "/auth/login"
	LogoutPath    = "/auth/logout"
)

// SessionToken derives the cookie value for password.
func SessionToken(password string) string {
	sum := sha256.Sum256([]byte("damagedetect:" + password))
	return hex.EncodeToString(sum[:])
}

// AuthMiddleware requires a valid session cookie when password is set. With an
// empty password every request passes through.
func AuthMiddleware(password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if password == "" {
			return next
		}
		token := []byte(SessionToken(password))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == LoginPath || r.URL.Path == LogoutPath {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(SessionCookie)
			if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), token) != 1 {
				if strings.HasPrefix(r.URL.Path, "/api/") ||
					r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
