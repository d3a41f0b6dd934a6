package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	payload := `{
		"users": {"u1": {"id": "u1", "email": "bob@dylan.com", "passwordHash": "89cad29e3ebc1035b29b1478a8e70854f25fa2b2"}},
		"files": {"f1": {"id": "f1", "userId": "u1", "name": "doc.txt", "type": "file", "parentId": "0"}}
	}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	snap, err := loadSnapshot(path)
	if err != nil {
		t.Fatalf("loadSnapshot returned error: %v", err)
	}
	if len(snap.Users) != 1 || snap.Users["u1"].Email != "bob@dylan.com" {
		t.Fatalf("unexpected users %+v", snap.Users)
	}
	if len(snap.Files) != 1 || snap.Files["f1"].Name != "doc.txt" {
		t.Fatalf("unexpected files %+v", snap.Files)
	}
}

func TestLoadSnapshotErrors(t *testing.T) {
	if _, err := loadSnapshot(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := loadSnapshot(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
