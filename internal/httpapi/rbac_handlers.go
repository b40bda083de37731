package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stockroom.org/internal/audit"
	"stockroom.org/internal/auth"
	"stockroom.org/internal/inventory"
)

type permissionsRequest struct {
	Permissions auth.Matrix `json:"permissions"`
}

type permissionsResponse struct {
	UserID      string      `json:"userId"`
	Permissions auth.Matrix `json:"permissions"`
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.inv.ListUsers(r.Context(), principalOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req inventory.NewUser
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.inv.CreateUser(r.Context(), principalOf(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+res.ID)
	writeResult(w, http.StatusCreated, res)
}

func (a *API) deactivateUser(w http.ResponseWriter, r *http.Request) {
	res, err := a.inv.DeactivateUser(r.Context(), principalOf(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (a *API) getPermissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	matrix, err := a.inv.UserPermissions(r.Context(), principalOf(r), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{UserID: id, Permissions: matrix})
}

func (a *API) updatePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.inv.UpdateUserPermissions(r.Context(), principalOf(r), chi.URLParam(r, "id"), req.Permissions)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	records, err := a.inv.ListAudit(r.Context(), principalOf(r), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
