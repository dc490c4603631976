package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/finauth"
)

type principalContextKey struct{}

// PrincipalFromContext returns the identity attached by [Guard].
func PrincipalFromContext(ctx context.Context) (*finauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*finauth.Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches p to ctx. Handlers under [Guard] never need it; it
// exists for tests and custom authenticators.
func WithPrincipal(ctx context.Context, p *finauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard rejects requests without a valid bearer access token whose session
// is still active.
func Guard(engine *finauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				if finauth.KindOf(err) == finauth.KindUnauthorized {
					WriteError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "service unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
