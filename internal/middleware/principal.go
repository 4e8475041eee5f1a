package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/craftbid/backend/internal/models"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// TokenValidator resolves a bearer token to a principal. Implemented by the
// auth service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (models.Principal, error)
}

// RequireAuth authenticates the request's bearer token and puts the resolved
// principal into the request context. The core trusts the token's role claim
// as already verified by the identity provider.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			p, err := validator.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// PrincipalFromCtx returns the authenticated principal, or nil.
func PrincipalFromCtx(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*models.Principal)
	return p
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, &p)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
