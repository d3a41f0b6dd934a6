package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"filevault/internal/auth"
	"filevault/internal/queue"
	"filevault/internal/storage"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Users registers a new account.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("Missing email"))
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, errors.New("Missing email"))
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, errors.New("Missing password"))
		return
	}

	hash := auth.HashPassword(req.Password)
	if h.HardenedPasswords {
		hardened, err := auth.HashPasswordHardened(req.Password)
		if err != nil {
			h.logger().Error("password hashing failed", "error", err)
			writeError(w, http.StatusInternalServerError, errInternal)
			return
		}
		hash = hardened
	}

	user, err := h.Store.CreateUser(r.Context(), storage.CreateUserParams{
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmailExists) {
			writeError(w, http.StatusBadRequest, errors.New("Already exist"))
			return
		}
		h.logger().Error("create user failed", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(user))
	h.enqueueWelcome(user.ID)
}

// enqueueWelcome hands the new account to the background greeter. The
// response has already been written, so failures are only logged.
func (h *Handler) enqueueWelcome(userID string) {
	if h.WelcomeQueue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.WelcomeQueue.Publish(ctx, queue.Job{UserID: userID}); err != nil {
		h.logger().Warn("welcome enqueue failed", "userID", userID, "error", err)
	}
}

// Me returns the authenticated account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}
