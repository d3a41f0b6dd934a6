package main

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenDatastoreDefaultsToJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	store, err := openDatastore(context.Background(), "", path, "")
	if err != nil {
		t.Fatalf("openDatastore returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	count, err := store.CountUsers(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected empty datastore, got %d err %v", count, err)
	}
}

func TestOpenDatastoreRejectsUnknownDriver(t *testing.T) {
	if _, err := openDatastore(context.Background(), "cassandra", "", ""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenDatastorePostgresRequiresDSN(t *testing.T) {
	if _, err := openDatastore(context.Background(), "postgres", "", ""); err == nil {
		t.Fatal("expected error for missing DSN")
	}
}
