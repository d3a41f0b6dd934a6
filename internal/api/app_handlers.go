package api

import (
	"fmt"
	"net/http"
)

// Status reports whether the session store and the datastore are reachable.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	redisOK := h.sessionManager().Ping(r.Context()) == nil
	dbOK := h.Store.Ping(r.Context()) == nil
	writeJSON(w, http.StatusOK, map[string]bool{"redis": redisOK, "db": dbOK})
}

// Stats reports how many users and files the datastore holds.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	users, err := h.Store.CountUsers(r.Context())
	if err != nil {
		h.logger().Error("count users failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	files, err := h.Store.CountFiles(r.Context())
	if err != nil {
		h.logger().Error("count files failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"users": users, "files": files})
}
