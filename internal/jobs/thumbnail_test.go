package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filevault/internal/content"
	"filevault/internal/models"
	"filevault/internal/queue"
	"filevault/internal/storage"
)

type workerFixture struct {
	store   *storage.Storage
	content *content.Store
	worker  *ThumbnailWorker
	user    models.User
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "data.json"))
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	blobs, err := content.NewStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		Email:        "bob@dylan.com",
		PasswordHash: "digest",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	worker, err := NewThumbnailWorker(ThumbnailWorkerConfig{
		Store:   store,
		Content: blobs,
		Queue:   queue.NewMemoryQueue(4),
	})
	if err != nil {
		t.Fatalf("NewThumbnailWorker returned error: %v", err)
	}
	return &workerFixture{store: store, content: blobs, worker: worker, user: user}
}

func (f *workerFixture) createImage(t *testing.T, data []byte) models.File {
	t.Helper()
	local, err := f.content.Save(data)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	file, err := f.store.CreateFile(context.Background(), storage.CreateFileParams{
		UserID:    f.user.ID,
		Name:      "photo.png",
		Type:      models.FileTypeImage,
		LocalPath: local,
	})
	if err != nil {
		t.Fatalf("CreateFile returned error: %v", err)
	}
	return file
}

func TestProcessGeneratesAllWidths(t *testing.T) {
	f := newWorkerFixture(t)
	file := f.createImage(t, encodeTestPNG(t, 800, 600))

	err := f.worker.Process(context.Background(), queue.Job{UserID: f.user.ID, FileID: file.ID})
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	for _, width := range Widths {
		blob, err := f.content.OpenDerivative(file.LocalPath, width)
		if err != nil {
			t.Fatalf("expected derivative for width %d: %v", width, err)
		}
		blob.Close()
	}
}

func TestProcessRejectsBadPayloads(t *testing.T) {
	f := newWorkerFixture(t)
	file := f.createImage(t, encodeTestPNG(t, 100, 100))

	cases := []struct {
		name string
		job  queue.Job
		want error
	}{
		{"missing file id", queue.Job{UserID: f.user.ID}, errMissingFileID},
		{"missing user id", queue.Job{FileID: file.ID}, errMissingUserID},
		{"unknown file", queue.Job{UserID: f.user.ID, FileID: "missing"}, errFileNotFound},
		{"wrong owner", queue.Job{UserID: "someone-else", FileID: file.ID}, errFileNotFound},
	}
	for _, tc := range cases {
		if err := f.worker.Process(context.Background(), tc.job); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestProcessRejectsNonImages(t *testing.T) {
	f := newWorkerFixture(t)
	local, err := f.content.Save([]byte("plain text"))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	doc, err := f.store.CreateFile(context.Background(), storage.CreateFileParams{
		UserID:    f.user.ID,
		Name:      "notes.txt",
		Type:      models.FileTypeFile,
		LocalPath: local,
	})
	if err != nil {
		t.Fatalf("CreateFile returned error: %v", err)
	}

	err = f.worker.Process(context.Background(), queue.Job{UserID: f.user.ID, FileID: doc.ID})
	if !errors.Is(err, errNotAnImage) {
		t.Fatalf("expected errNotAnImage, got %v", err)
	}
}

func TestProcessToleratesUndecodableOriginals(t *testing.T) {
	f := newWorkerFixture(t)
	file := f.createImage(t, []byte("corrupted bytes"))

	// Every width fails to decode, yet the job itself succeeds so the queue
	// does not replay a permanently broken image.
	if err := f.worker.Process(context.Background(), queue.Job{UserID: f.user.ID, FileID: file.ID}); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	for _, width := range Widths {
		if blob, err := f.content.OpenDerivative(file.LocalPath, width); err == nil {
			blob.Close()
			t.Fatalf("expected no derivative for width %d", width)
		}
	}
}

func TestProcessToleratesSingleWidthFailure(t *testing.T) {
	f := newWorkerFixture(t)
	file := f.createImage(t, encodeTestPNG(t, 800, 600))

	// A directory squatting on the width-250 path makes that one write fail
	// while the other widths stay writable.
	blocked := filepath.Join(f.content.Root(), content.DerivativeName(file.LocalPath, 250))
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("Mkdir returned error: %v", err)
	}

	if err := f.worker.Process(context.Background(), queue.Job{UserID: f.user.ID, FileID: file.ID}); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	for _, width := range []int{500, 100} {
		blob, err := f.content.OpenDerivative(file.LocalPath, width)
		if err != nil {
			t.Fatalf("expected derivative for width %d: %v", width, err)
		}
		blob.Close()
	}
	info, err := os.Stat(blocked)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected width 250 path to stay blocked")
	}
}

func TestWelcomeWorkerLogsGreeting(t *testing.T) {
	f := newWorkerFixture(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	welcome, err := NewWelcomeWorker(WelcomeWorkerConfig{
		Store:  f.store,
		Queue:  queue.NewMemoryQueue(4),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewWelcomeWorker returned error: %v", err)
	}

	if err := welcome.Process(context.Background(), queue.Job{UserID: f.user.ID}); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "Welcome bob@dylan.com!") {
		t.Fatalf("expected greeting in log output, got %q", buf.String())
	}

	if err := welcome.Process(context.Background(), queue.Job{}); !errors.Is(err, errMissingUserID) {
		t.Fatalf("expected errMissingUserID, got %v", err)
	}
	if err := welcome.Process(context.Background(), queue.Job{UserID: "ghost"}); !errors.Is(err, errUnknownUser) {
		t.Fatalf("expected errUnknownUser, got %v", err)
	}
}
