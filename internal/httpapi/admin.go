package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/atlasdatatech/mvt-server/internal/apperr"
	"github.com/atlasdatatech/mvt-server/internal/applog"
	"github.com/atlasdatatech/mvt-server/internal/catalog"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

// requireAdmin gates a handler behind a resolved identity whose groups
// include "admin", following Layer.IsAdmin's "admin" group-name check.
func (a *API) requireAdmin(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		user := a.Auth.AuthenticatedUser(r)
		if user == nil || !user.IsAdmin() {
			writeJSONError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r, params)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": http.StatusText(status), "message": message})
}

// writeErr maps a returned error to its documented HTTP status (§7) and
// logs it, matching the core's never-leak-SQL-detail rule for 500s.
func writeErr(w http.ResponseWriter, err error) {
	status := apperr.StatusFor(err)
	applog.Warnf("httpapi: admin request failed: %v", err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSONError(w, status, message)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var c catalog.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := a.Catalog.CreateCategory(c)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var c catalog.Category
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c.ID = params["id"]
	if err := a.Catalog.UpdateCategory(c); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := a.Catalog.DeleteCategory(params["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var g catalog.Group
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := a.Catalog.CreateGroup(g)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleUpdateGroup(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var g catalog.Group
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	g.ID = params["id"]
	if err := a.Catalog.UpdateGroup(g); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleDeleteGroup(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := a.Catalog.DeleteGroup(params["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateLayer(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var l catalog.Layer
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.Catalog.AddLayer(l); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (a *API) handleUpdateLayer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var l catalog.Layer
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	l.ID = params["id"]
	if err := a.Catalog.UpdateLayer(l); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) handleDeleteLayer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := a.Catalog.DeleteLayer(params["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTogglePublish(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := a.Catalog.TogglePublished(params["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
