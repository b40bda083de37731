package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"stockroom.org/internal/apperr"
	"stockroom.org/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Principal auth.Principal `json:"principal"`
}

func (a *API) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.directory.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			a.unauthenticated(w, r, "invalid credentials")
		case errors.Is(err, auth.ErrInactive):
			a.unauthenticated(w, r, "account is deactivated")
		default:
			a.fail(w, r, apperr.Wrap(apperr.CodeStoreUnavailable, err, "login failed"))
		}
		return
	}

	principal := user.Principal()
	token, expires, err := a.tokens.Issue(principal)
	if err != nil {
		a.fail(w, r, apperr.Wrap(apperr.CodeInternal, err, "token generation failed"))
		return
	}
	a.log.Entry(r.Context()).Info().
		Str("user_id", principal.ID).
		Str("role", string(principal.Role)).
		Msg("auth.token_issued")

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expires,
		Principal: principal,
	})
}

type meResponse struct {
	Principal   auth.Principal  `json:"principal"`
	Permissions auth.Matrix     `json:"permissions"`
	Readable    []auth.Resource `json:"readable"`
}

// Me reports the caller's effective permissions and the resources the UI
// may show.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	p := principalOf(r)
	engine := a.inv.Engine()
	matrix, err := engine.EffectiveMatrix(r.Context(), p)
	if err != nil {
		a.fail(w, r, apperr.Wrap(apperr.CodeStoreUnavailable, err, "permissions unavailable"))
		return
	}
	readable, err := engine.ReadableResources(r.Context(), p)
	if err != nil {
		a.fail(w, r, apperr.Wrap(apperr.CodeStoreUnavailable, err, "permissions unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		Principal:   p,
		Permissions: matrix,
		Readable:    readable,
	})
}

type authorizeRequest struct {
	Resource auth.Resource `json:"resource"`
	Action   auth.Action   `json:"action"`
}

// Authorize answers a single permission question for the caller.
func (a *API) Authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.inv.Authorize(r.Context(), principalOf(r), req.Resource, req.Action))
}
