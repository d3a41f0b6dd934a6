package models

import "time"

// RootParentID marks a file that lives at the top of a user's hierarchy.
const RootParentID = "0"

// FileType enumerates the kinds of records the metadata store accepts.
type FileType string

const (
	FileTypeFolder FileType = "folder"
	FileTypeFile   FileType = "file"
	FileTypeImage  FileType = "image"
)

// Valid reports whether the type is one of the accepted kinds.
func (t FileType) Valid() bool {
	switch t {
	case FileTypeFolder, FileTypeFile, FileTypeImage:
		return true
	}
	return false
}

// User is an account holder. PasswordHash is an opaque one-way digest; its
// format is owned by the auth package. API handlers expose users through
// response structs, so the hash never reaches clients even though it is
// serialised into the datastore.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// File is a stored document, image, or folder. Folders carry no binary
// content; files and images reference it via LocalPath, an identifier local
// to the content store that never changes after creation.
type File struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Type      FileType  `json:"type"`
	ParentID  string    `json:"parentId"`
	IsPublic  bool      `json:"isPublic"`
	LocalPath string    `json:"localPath,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsFolder reports whether the record is a grouping node without content.
func (f File) IsFolder() bool {
	return f.Type == FileTypeFolder
}
