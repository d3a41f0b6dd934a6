package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueDeliversEachJobOnce(t *testing.T) {
	q := NewMemoryQueue(8)
	sub := q.Subscribe()
	t.Cleanup(sub.Close)

	jobs := []Job{
		{UserID: "user-1", FileID: "file-1"},
		{UserID: "user-2", FileID: "file-2"},
	}
	for _, job := range jobs {
		if err := q.Publish(context.Background(), job); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}

	for _, want := range jobs {
		select {
		case got := <-sub.Jobs():
			if got != want {
				t.Fatalf("expected job %+v, got %+v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for job")
		}
	}
}

func TestMemoryQueueRejectsEmptyJob(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), Job{}); err == nil {
		t.Fatal("expected error for empty job payload")
	}
}

func TestMemoryQueuePublishHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), Job{UserID: "user-1"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Job{UserID: "user-2"}); err == nil {
		t.Fatal("expected publish into a full queue to respect the deadline")
	}
}
