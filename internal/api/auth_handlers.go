package api

import (
	"errors"
	"fmt"
	"net/http"

	"filevault/internal/auth"
)

// Connect exchanges Basic credentials for a session token.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	email, password, ok := r.BasicAuth()
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized)
		return
	}
	if h.Verifier == nil {
		h.logger().Error("credential verifier not configured")
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	user, err := h.Verifier.Verify(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, ErrUnauthorized)
			return
		}
		h.logger().Error("credential check failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	token, _, err := h.sessionManager().Create(r.Context(), user.ID)
	if err != nil {
		h.logger().Error("session create failed", "userID", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Disconnect revokes the request's session token.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.sessionManager().Revoke(r.Context(), ExtractToken(r)); err != nil {
		h.logger().Error("session revoke failed", "userID", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
