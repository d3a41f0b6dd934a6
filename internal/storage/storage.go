package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"filevault/internal/models"
)

type dataset struct {
	Users map[string]models.User `json:"users"`
	Files map[string]models.File `json:"files"`
}

// Storage is a JSON-file-backed datastore. The full dataset lives in memory
// guarded by a mutex and every mutation rewrites the backing file atomically.
// It serves development and single-instance deployments.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
}

// Option mutates storage configuration.
type Option func(*Storage)

// WithClock overrides timestamp generation, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

func newDataset() dataset {
	return dataset{
		Users: make(map[string]models.User),
		Files: make(map[string]models.File),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Files == nil {
		s.data.Files = make(map[string]models.File)
	}
}

// NewStorage opens the JSON datastore at path, creating the parent directory
// and an empty dataset when the file does not exist yet.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()

	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// Ping reports whether the datastore is usable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.Users == nil || s.data.Files == nil {
		return fmt.Errorf("datastore not initialized")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser persists a new user. Emails are unique across the dataset.
func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, fmt.Errorf("email is required")
	}
	if params.PasswordHash == "" {
		return models.User{}, fmt.Errorf("password hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.data.Users {
		if normalizeEmail(user.Email) == email {
			return models.User{}, ErrEmailExists
		}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		ID:           id,
		Email:        email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    s.now(),
	}
	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, id)
		return models.User{}, err
	}
	return user, nil
}

// GetUser fetches a user by identifier.
func (s *Storage) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok, nil
}

// GetUserByEmail fetches a user by normalized email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	needle := normalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if normalizeEmail(user.Email) == needle {
			return user, true, nil
		}
	}
	return models.User{}, false, nil
}

// CountUsers reports the number of registered users.
func (s *Storage) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data.Users)), nil
}

func (s *Storage) validateParentLocked(parentID string) error {
	if parentID == models.RootParentID {
		return nil
	}
	parent, ok := s.data.Files[parentID]
	if !ok {
		return ErrParentNotFound
	}
	if !parent.IsFolder() {
		return ErrParentNotFolder
	}
	return nil
}

// CreateFile persists a new file record after validating the parent
// reference.
func (s *Storage) CreateFile(ctx context.Context, params CreateFileParams) (models.File, error) {
	if params.UserID == "" {
		return models.File{}, fmt.Errorf("user id is required")
	}
	if params.Name == "" {
		return models.File{}, fmt.Errorf("name is required")
	}
	if !params.Type.Valid() {
		return models.File{}, fmt.Errorf("invalid file type %q", params.Type)
	}
	parentID := params.ParentID
	if parentID == "" {
		parentID = models.RootParentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateParentLocked(parentID); err != nil {
		return models.File{}, err
	}

	id, err := generateID()
	if err != nil {
		return models.File{}, err
	}
	file := models.File{
		ID:        id,
		UserID:    params.UserID,
		Name:      params.Name,
		Type:      params.Type,
		ParentID:  parentID,
		IsPublic:  params.IsPublic,
		LocalPath: params.LocalPath,
		CreatedAt: s.now(),
	}
	s.data.Files[id] = file
	if err := s.persist(); err != nil {
		delete(s.data.Files, id)
		return models.File{}, err
	}
	return file, nil
}

// GetFile fetches a file record by identifier.
func (s *Storage) GetFile(ctx context.Context, id string) (models.File, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.data.Files[id]
	return file, ok, nil
}

// ListFiles returns the user's files under the given parent, oldest first,
// in fixed pages of PageSize records. Page numbers start at zero.
func (s *Storage) ListFiles(ctx context.Context, userID, parentID string, page int) ([]models.File, error) {
	if page < 0 {
		page = 0
	}
	if parentID == "" {
		parentID = models.RootParentID
	}

	s.mu.RLock()
	matched := make([]models.File, 0)
	for _, file := range s.data.Files {
		if file.UserID == userID && file.ParentID == parentID {
			matched = append(matched, file)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	start := page * PageSize
	if start >= len(matched) {
		return []models.File{}, nil
	}
	end := start + PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// SetFilePublic flips the visibility flag on a file owned by userID. The
// boolean result reports whether a matching owned record exists.
func (s *Storage) SetFilePublic(ctx context.Context, id, userID string, public bool) (models.File, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.data.Files[id]
	if !ok || file.UserID != userID {
		return models.File{}, false, nil
	}
	previous := file
	file.IsPublic = public
	s.data.Files[id] = file
	if err := s.persist(); err != nil {
		s.data.Files[id] = previous
		return models.File{}, false, err
	}
	return file, true, nil
}

// CountFiles reports the number of file records.
func (s *Storage) CountFiles(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data.Files)), nil
}

// Close flushes the dataset to disk.
func (s *Storage) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}
