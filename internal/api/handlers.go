package api

import (
	"log/slog"
	"time"

	"filevault/internal/auth"
	"filevault/internal/content"
	"filevault/internal/models"
	"filevault/internal/queue"
	"filevault/internal/storage"
)

type Handler struct {
	Store          storage.Repository
	Sessions       *auth.SessionManager
	Verifier       *auth.Verifier
	Content        *content.Store
	ThumbnailQueue queue.Queue
	WelcomeQueue   queue.Queue
	Logger         *slog.Logger

	// HardenedPasswords switches new accounts to salted PBKDF2 records.
	// Existing SHA-1 records keep verifying either way.
	HardenedPasswords bool
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return &Handler{Store: store, Sessions: sessions}
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return h.Sessions
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{ID: user.ID, Email: user.Email}
}

type fileResponse struct {
	ID       string          `json:"id"`
	UserID   string          `json:"userId"`
	Name     string          `json:"name"`
	Type     models.FileType `json:"type"`
	IsPublic bool            `json:"isPublic"`
	ParentID string          `json:"parentId"`
}

func newFileResponse(file models.File) fileResponse {
	return fileResponse{
		ID:       file.ID,
		UserID:   file.UserID,
		Name:     file.Name,
		Type:     file.Type,
		IsPublic: file.IsPublic,
		ParentID: file.ParentID,
	}
}

func newFileListResponse(files []models.File) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, file := range files {
		out = append(out, newFileResponse(file))
	}
	return out
}
