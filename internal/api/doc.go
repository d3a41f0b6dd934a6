// Package api implements the HTTP handlers for the file storage service:
// account registration, token-based sessions, file metadata CRUD, content
// retrieval, and the enqueueing of background jobs.
package api
