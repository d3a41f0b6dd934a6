package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"filevault/internal/models"
	"filevault/internal/queue"
	"filevault/internal/storage"
)

var (
	errMissingName    = errors.New("Missing name")
	errInvalidType    = errors.New("Missing or invalid type")
	errMissingData    = errors.New("Missing data")
	errInvalidData    = errors.New("Invalid data")
	errParentNotFound = errors.New("Parent not found")
	errParentType     = errors.New("Parent is not a folder")
	errNotFound       = errors.New("Not found")
	errFolderContent  = errors.New("A folder doesn't have content")
	errInvalidSize    = errors.New("Invalid size")
)

// derivativeSizes are the widths a client may request with ?size=.
var derivativeSizes = map[int]struct{}{500: {}, 250: {}, 100: {}}

type uploadRequest struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	ParentID interface{} `json:"parentId"`
	IsPublic bool        `json:"isPublic"`
	Data     string      `json:"data"`
}

// parentID normalizes the optional parent reference. Clients send it as a
// string identifier or as the number 0 for the root.
func (req uploadRequest) parentID() string {
	switch v := req.ParentID.(type) {
	case nil:
		return models.RootParentID
	case string:
		if v == "" {
			return models.RootParentID
		}
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Files dispatches the file collection routes: upload and listing.
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.uploadFile(w, r)
	case http.MethodGet:
		h.listFiles(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errMissingName)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errMissingName)
		return
	}
	fileType := models.FileType(req.Type)
	if !fileType.Valid() {
		writeError(w, http.StatusBadRequest, errInvalidType)
		return
	}
	if fileType != models.FileTypeFolder && req.Data == "" {
		writeError(w, http.StatusBadRequest, errMissingData)
		return
	}

	parentID := req.parentID()
	if parentID != models.RootParentID {
		parent, exists, err := h.Store.GetFile(r.Context(), parentID)
		if err != nil {
			h.logger().Error("parent lookup failed", "parentID", parentID, "error", err)
			writeError(w, http.StatusInternalServerError, errInternal)
			return
		}
		if !exists {
			writeError(w, http.StatusBadRequest, errParentNotFound)
			return
		}
		if !parent.IsFolder() {
			writeError(w, http.StatusBadRequest, errParentType)
			return
		}
	}

	localPath := ""
	if fileType != models.FileTypeFolder {
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, errInvalidData)
			return
		}
		localPath, err = h.Content.Save(data)
		if err != nil {
			h.logger().Error("content write failed", "name", req.Name, "error", err)
			writeError(w, http.StatusInternalServerError, errInternal)
			return
		}
	}

	file, err := h.Store.CreateFile(r.Context(), storage.CreateFileParams{
		UserID:    user.ID,
		Name:      req.Name,
		Type:      fileType,
		ParentID:  parentID,
		IsPublic:  req.IsPublic,
		LocalPath: localPath,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrParentNotFound):
			writeError(w, http.StatusBadRequest, errParentNotFound)
		case errors.Is(err, storage.ErrParentNotFolder):
			writeError(w, http.StatusBadRequest, errParentType)
		default:
			h.logger().Error("create file failed", "name", req.Name, "error", err)
			writeError(w, http.StatusInternalServerError, errInternal)
		}
		return
	}

	writeJSON(w, http.StatusCreated, newFileResponse(file))
	if file.Type == models.FileTypeImage {
		h.enqueueThumbnail(user.ID, file.ID)
	}
}

// enqueueThumbnail schedules derivative generation once the creation
// response has been written. Failures are logged, never surfaced.
func (h *Handler) enqueueThumbnail(userID, fileID string) {
	if h.ThumbnailQueue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.ThumbnailQueue.Publish(ctx, queue.Job{UserID: userID, FileID: fileID}); err != nil {
		h.logger().Warn("thumbnail enqueue failed", "fileID", fileID, "error", err)
	}
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	parentID := r.URL.Query().Get("parentId")
	if parentID == "" {
		parentID = models.RootParentID
	}
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}

	files, err := h.Store.ListFiles(r.Context(), user.ID, parentID, page)
	if err != nil {
		h.logger().Error("list files failed", "userID", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, newFileListResponse(files))
}

// FileByID dispatches the per-file routes: show, publish, unpublish, and
// content download.
func (h *Handler) FileByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/files/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	id := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h.showFile(w, r, id)
		return
	}
	if len(segments) == 2 {
		switch segments[1] {
		case "publish", "unpublish":
			if r.Method != http.MethodPut {
				w.Header().Set("Allow", "PUT")
				writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
				return
			}
			h.setVisibility(w, r, id, segments[1] == "publish")
			return
		case "data":
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", "GET")
				writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
				return
			}
			h.fileData(w, r, id)
			return
		}
	}
	writeError(w, http.StatusNotFound, errNotFound)
}

func (h *Handler) showFile(w http.ResponseWriter, r *http.Request, id string) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	file, exists, err := h.Store.GetFile(r.Context(), id)
	if err != nil {
		h.logger().Error("get file failed", "fileID", id, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	if !exists || file.UserID != user.ID {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse(file))
}

func (h *Handler) setVisibility(w http.ResponseWriter, r *http.Request, id string, public bool) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	file, found, err := h.Store.SetFilePublic(r.Context(), id, user.ID, public)
	if err != nil {
		h.logger().Error("set file visibility failed", "fileID", id, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse(file))
}

// fileData streams the stored content. Public files are readable without a
// session; private files answer 404 rather than 401 so their existence is
// not revealed to strangers.
func (h *Handler) fileData(w http.ResponseWriter, r *http.Request, id string) {
	file, exists, err := h.Store.GetFile(r.Context(), id)
	if err != nil {
		h.logger().Error("get file failed", "fileID", id, "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}

	if !file.IsPublic {
		user, err := h.authenticate(r)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				writeError(w, http.StatusNotFound, errNotFound)
				return
			}
			h.logger().Error("session lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, errInternal)
			return
		}
		if user.ID != file.UserID {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}
	}

	if file.IsFolder() {
		writeError(w, http.StatusBadRequest, errFolderContent)
		return
	}

	// The size hint only applies to images; other types serve the original.
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" && file.Type == models.FileTypeImage {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errInvalidSize)
			return
		}
		if _, ok := derivativeSizes[parsed]; !ok {
			writeError(w, http.StatusBadRequest, errInvalidSize)
			return
		}
		size = parsed
	}

	blob, err := h.openContent(file, size)
	if err != nil {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	defer blob.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, blob)
}

func (h *Handler) openContent(file models.File, size int) (io.ReadCloser, error) {
	if size > 0 {
		return h.Content.OpenDerivative(file.LocalPath, size)
	}
	return h.Content.Open(file.LocalPath)
}
