package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	manager := NewSessionManager(50 * time.Millisecond)
	token, expiresAt, err := manager.Create(ctx, "user-123")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("expected expiry in the future")
	}

	userID, expires, ok, err := manager.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected token to validate")
	}
	if userID != "user-123" {
		t.Fatalf("expected user id user-123, got %s", userID)
	}
	if !expires.Equal(expiresAt) {
		t.Fatalf("expected expiry %v, got %v", expiresAt, expires)
	}

	if err := manager.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if _, _, ok, err := manager.Validate(ctx, token); err != nil || ok {
		if err != nil {
			t.Fatalf("Validate returned error for revoked token: %v", err)
		}
		t.Fatal("expected revoked token to be invalid")
	}
}

func TestSessionTokenIsUUID(t *testing.T) {
	manager := NewSessionManager(time.Minute)
	token, _, err := manager.Create(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(token) != 36 {
		t.Fatalf("expected 36-character token, got %d characters", len(token))
	}
}

func TestSessionExpiration(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	manager := NewSessionManager(10*time.Millisecond, WithStore(store))
	token, _, err := manager.Create(ctx, "user-123")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	purged, err := manager.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired returned error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}
	if _, ok, err := store.Get(ctx, token); err != nil {
		t.Fatalf("Get returned error: %v", err)
	} else if ok {
		t.Fatalf("expected expired session to be purged")
	}
	if _, _, ok, err := manager.Validate(ctx, token); err != nil || ok {
		if err != nil {
			t.Fatalf("Validate returned error for expired token: %v", err)
		}
		t.Fatal("expected expired token to be invalid")
	}
}

func TestCreateRequiresUserID(t *testing.T) {
	manager := NewSessionManager(time.Minute)
	if _, _, err := manager.Create(context.Background(), ""); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestSessionPersistsAcrossManagers(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	first := NewSessionManager(time.Minute, WithStore(store))
	token, _, err := first.Create(ctx, "user-456")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	second := NewSessionManager(time.Minute, WithStore(store))
	userID, _, ok, err := second.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !ok || userID != "user-456" {
		t.Fatalf("expected shared store to resolve token, got ok=%v user=%s", ok, userID)
	}
}

type failingSessionStore struct{}

func (failingSessionStore) Save(context.Context, string, string, time.Time) error {
	return errors.New("store down")
}

func (failingSessionStore) Get(context.Context, string) (SessionRecord, bool, error) {
	return SessionRecord{}, false, errors.New("store down")
}

func (failingSessionStore) Delete(context.Context, string) error { return errors.New("store down") }

func (failingSessionStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("store down")
}

func TestValidateSurfacesStoreErrors(t *testing.T) {
	manager := NewSessionManager(time.Minute, WithStore(failingSessionStore{}))
	if _, _, _, err := manager.Validate(context.Background(), "some-token"); err == nil {
		t.Fatal("expected store failure to surface as an error")
	}
}

func TestWithTokenFactory(t *testing.T) {
	store := NewMemorySessionStore()
	manager := NewSessionManager(time.Minute, WithStore(store), WithTokenFactory(func() string {
		return "fixed-token"
	}))
	token, _, err := manager.Create(context.Background(), "user-789")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if token != "fixed-token" {
		t.Fatalf("expected factory token, got %s", token)
	}
}
