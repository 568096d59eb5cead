package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Auth guards the API with a shared key presented either as a Bearer token or
// in the X-API-Key header. When apiKeyHash is set it wins and the presented
// key is checked against the bcrypt hash; otherwise apiKey is compared in
// constant time. Both empty disables the middleware entirely.
func Auth(apiKey, apiKeyHash string) func(http.Handler) http.Handler {
	verify := func(token string) bool {
		if apiKeyHash != "" {
			return bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(token)) == nil
		}
		return subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" && apiKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := presentedKey(r)
			switch {
			case token == "":
				writeUnauthorized(w, "missing authentication token")
			case !verify(token):
				writeUnauthorized(w, "invalid authentication token")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// presentedKey pulls the credential from Authorization: Bearer or X-API-Key.
func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok {
		if strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
