package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type ctxKey struct{}

// FromContext returns the operator claims AdminOnly attached to the request.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// Verifier is satisfied by *Admin and *JWTSigner.
type Verifier interface {
	ParseAndValidate(tokenStr string) (*Claims, error)
}

// AdminOnly guards the operator routes: the request needs a bearer token
// that v accepts and that carries RoleAdmin. Vault routes never pass
// through here; their writes are gated by the per-vault secret.
func AdminOnly(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				deny(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := v.ParseAndValidate(tok)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if !claims.IsAdmin() {
				deny(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return tok, ok && tok != ""
}

// deny writes the same {"error": ...} body as the vault handlers.
func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
