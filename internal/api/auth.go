package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"filevault/internal/models"
)

// TokenHeader carries the session token on authenticated requests.
const TokenHeader = "X-Token"

// ErrUnauthorized is returned when a request carries no resolvable session.
// Its text is the wire-format error body.
var ErrUnauthorized = errors.New("Unauthorized")

var errInternal = errors.New("internal server error")

// ExtractToken reads the session token from the request headers.
func ExtractToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(TokenHeader))
}

// authenticate resolves the request's session token to a user. A missing or
// unknown token maps to ErrUnauthorized; infrastructure failures surface as
// other errors so callers can return a 500 instead of logging users out.
func (h *Handler) authenticate(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, ErrUnauthorized
	}
	userID, _, ok, err := h.sessionManager().Validate(r.Context(), token)
	if err != nil {
		return models.User{}, fmt.Errorf("validate session: %w", err)
	}
	if !ok {
		return models.User{}, ErrUnauthorized
	}
	user, exists, err := h.Store.GetUser(r.Context(), userID)
	if err != nil {
		return models.User{}, fmt.Errorf("load session user: %w", err)
	}
	if !exists {
		return models.User{}, ErrUnauthorized
	}
	return user, nil
}

// requireUser authenticates the request, writing the error response itself
// when authentication fails.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, err := h.authenticate(r)
	if err == nil {
		return user, true
	}
	if errors.Is(err, ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, ErrUnauthorized)
	} else {
		h.logger().Error("session lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
	}
	return models.User{}, false
}
