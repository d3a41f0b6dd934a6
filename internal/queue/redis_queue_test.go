package queue

import (
	"context"
	"testing"
	"time"

	"filevault/internal/redisx"
	"filevault/internal/testsupport/redisstub"
)

func TestRedisQueueRequeuesOnCancellation(t *testing.T) {
	srv, err := redisstub.Start(redisstub.Options{Password: "secret"})
	if err != nil {
		t.Fatalf("failed to start redis stub: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Close()
	})

	q, err := NewRedisQueue(RedisQueueConfig{
		Redis:        redisx.Config{Addr: srv.Addr(), Password: "secret"},
		Stream:       "test-stream",
		Group:        "test-group",
		BlockTimeout: 50 * time.Millisecond,
		Buffer:       1,
	})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	sub := q.Subscribe()

	job1 := Job{UserID: "user-1", FileID: "file-1"}
	job2 := Job{UserID: "user-2", FileID: "file-2"}

	if err := q.Publish(context.Background(), job1); err != nil {
		t.Fatalf("publish job1: %v", err)
	}
	if err := q.Publish(context.Background(), job2); err != nil {
		t.Fatalf("publish job2: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	sub.Close()

	var drained []Job
	for job := range sub.Jobs() {
		drained = append(drained, job)
	}
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained job, got %d", len(drained))
	}
	if drained[0] != job1 {
		t.Fatalf("unexpected drained job: %+v", drained[0])
	}

	replacement := q.Subscribe()
	t.Cleanup(replacement.Close)

	select {
	case got := <-replacement.Jobs():
		if got != job2 {
			t.Fatalf("unexpected job: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for requeued job")
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	srv, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("failed to start redis stub: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Close()
	})

	q, err := NewRedisQueue(RedisQueueConfig{
		Redis:        redisx.Config{Addr: srv.Addr()},
		Stream:       "round-trip",
		Group:        "workers",
		BlockTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}

	sub := q.Subscribe()
	t.Cleanup(sub.Close)

	want := Job{UserID: "user-9", FileID: "file-9"}
	if err := q.Publish(context.Background(), want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-sub.Jobs():
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
	}
}
