package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware rejects requests without "Authorization: Bearer <token>".
// An empty token disables authentication.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	expected := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="keepsake"`)
			http.Error(w, `{"error":"unauthorized","kind":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
