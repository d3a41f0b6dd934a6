package storage

import (
	"context"
	"errors"

	"filevault/internal/models"
)

// PageSize is the fixed number of records returned per listing page.
const PageSize = 20

var (
	// ErrEmailExists is returned when creating a user with an email that is
	// already registered.
	ErrEmailExists = errors.New("email already registered")
	// ErrParentNotFound is returned when a file references a parent that
	// does not exist.
	ErrParentNotFound = errors.New("parent not found")
	// ErrParentNotFolder is returned when a file references a parent that is
	// not a folder.
	ErrParentNotFolder = errors.New("parent is not a folder")
)

// CreateUserParams captures the attributes that can be set when creating a
// user. PasswordHash carries the already-hashed credential; the storage layer
// never sees plaintext passwords.
type CreateUserParams struct {
	Email        string
	PasswordHash string
}

// CreateFileParams captures the attributes that can be set when persisting a
// file record. LocalPath is empty for folders.
type CreateFileParams struct {
	UserID    string
	Name      string
	Type      models.FileType
	ParentID  string
	IsPublic  bool
	LocalPath string
}

// Repository exposes the datastore operations required by the API handlers
// and the background workers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, bool, error)
	CountUsers(ctx context.Context) (int64, error)

	CreateFile(ctx context.Context, params CreateFileParams) (models.File, error)
	GetFile(ctx context.Context, id string) (models.File, bool, error)
	ListFiles(ctx context.Context, userID, parentID string, page int) ([]models.File, error)
	SetFilePublic(ctx context.Context, id, userID string, public bool) (models.File, bool, error)
	CountFiles(ctx context.Context) (int64, error)

	Close(ctx context.Context) error
}

var _ Repository = (*Storage)(nil)
