package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/store"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticate resolves the bearer token to the stored user. The role and
// active flag come from the user record, not the token claims.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.unauthenticated(w, r, err.Error())
			return
		}
		claims, err := a.tokens.Parse(token)
		if err != nil {
			a.unauthenticated(w, r, "invalid token")
			return
		}
		principal, err := a.directory.Principal(r.Context(), claims.Subject)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrNotFound):
				a.unauthenticated(w, r, "unknown principal")
			case errors.Is(err, store.ErrUnavailable):
				a.fail(w, r, apperr.Wrap(apperr.CodeStoreUnavailable, err, "user directory unavailable"))
			default:
				a.fail(w, r, apperr.Wrap(apperr.CodeInternal, err, "authentication error"))
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = a.log.WithUserID(ctx, principal.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) unauthenticated(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="stockroom"`)
	a.fail(w, r, apperr.New(apperr.CodeUnauthenticated, msg))
}

// principalOf returns the authenticated principal. A request that bypassed
// authentication yields the zero principal, which every check denies.
func principalOf(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
