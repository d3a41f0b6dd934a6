// Package content persists uploaded file bytes on the local filesystem.
// Records in the metadata store reference blobs by an opaque local name that
// never changes after creation.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultRoot is where blobs land when no directory is configured.
const DefaultRoot = "/tmp/files_manager"

// ErrInvalidName is returned when a local name would escape the store root.
var ErrInvalidName = errors.New("invalid content name")

// Store writes and reads content blobs under a single root directory.
type Store struct {
	root string
}

// NewStore ensures the root directory exists and returns a store over it.
// An empty root falls back to DefaultRoot.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root reports the directory blobs are stored under.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, name), nil
}

// Save writes data under a fresh local name and returns that name.
func (s *Store) Save(data []byte) (string, error) {
	name := uuid.NewString()
	path := filepath.Join(s.root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write content: %w", err)
	}
	return name, nil
}

// Open returns a reader over the named blob. The caller closes it.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// ReadFile returns the named blob's bytes.
func (s *Store) ReadFile(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Exists reports whether the named blob is present on disk.
func (s *Store) Exists(name string) (bool, error) {
	path, err := s.resolve(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DerivativeName returns the local name a resized variant is stored under.
func DerivativeName(name string, width int) string {
	return name + "_" + strconv.Itoa(width)
}

// WriteDerivative stores a resized variant alongside the original blob.
func (s *Store) WriteDerivative(name string, width int, data []byte) error {
	path, err := s.resolve(DerivativeName(name, width))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write derivative: %w", err)
	}
	return nil
}

// OpenDerivative returns a reader over a resized variant.
func (s *Store) OpenDerivative(name string, width int) (*os.File, error) {
	path, err := s.resolve(DerivativeName(name, width))
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}
