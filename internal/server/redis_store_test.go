package server

import (
	"context"
	"testing"
	"time"

	"filevault/internal/redisx"
	"filevault/internal/testsupport/redisstub"
)

func TestRedisStoreAllow(t *testing.T) {
	srv, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	store := newRedisStore(redisx.Config{Addr: srv.Addr()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := store.Allow(ctx, "filevault:login:10.0.0.1", 3, time.Minute)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}

	allowed, retryAfter, err := store.Allow(ctx, "filevault:login:10.0.0.1", 3, time.Minute)
	if err != nil {
		t.Fatalf("limited attempt: %v", err)
	}
	if allowed {
		t.Fatal("expected attempt over the limit to be denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a retry hint, got %v", retryAfter)
	}

	allowed, _, err = store.Allow(ctx, "filevault:login:10.0.0.2", 3, time.Minute)
	if err != nil || !allowed {
		t.Fatalf("other keys should be unaffected: allowed=%v err=%v", allowed, err)
	}
}
