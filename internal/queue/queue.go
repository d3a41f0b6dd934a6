// Package queue moves background jobs between the API process and the
// workers. Jobs are JSON payloads on a named stream; delivery is
// at-least-once, so consumers must tolerate replays.
package queue

import (
	"context"
	"errors"
	"sync"
)

// Job is the unit of background work. Thumbnail jobs carry both identifiers;
// welcome jobs carry only the user.
type Job struct {
	UserID string `json:"userId"`
	FileID string `json:"fileId,omitempty"`
}

// Queue accepts jobs and hands them to subscribers.
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Subscribe() Subscription
}

// Subscription represents an active job stream.
type Subscription interface {
	Jobs() <-chan Job
	Close()
}

// NewMemoryQueue initialises an in-process queue suitable for tests and
// single-process deployments. Each published job reaches exactly one
// subscriber.
func NewMemoryQueue(buffer int) Queue {
	if buffer <= 0 {
		buffer = 32
	}
	return &memoryQueue{
		ch:   make(chan Job, buffer),
		done: make(chan struct{}),
	}
}

type memoryQueue struct {
	ch   chan Job
	done chan struct{}

	mu   sync.Mutex
	subs []*memorySubscription
}

func (q *memoryQueue) Publish(ctx context.Context, job Job) error {
	if job.UserID == "" && job.FileID == "" {
		return errors.New("job payload is required")
	}
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Subscribe() Subscription {
	sub := &memorySubscription{
		queue: q,
		out:   make(chan Job),
		stop:  make(chan struct{}),
	}
	q.mu.Lock()
	q.subs = append(q.subs, sub)
	q.mu.Unlock()
	go sub.run()
	return sub
}

type memorySubscription struct {
	queue *memoryQueue
	out   chan Job
	stop  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) Jobs() <-chan Job {
	return s.out
}

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		close(s.stop)
	})
}

func (s *memorySubscription) run() {
	defer close(s.out)
	for {
		select {
		case <-s.stop:
			return
		case job := <-s.queue.ch:
			select {
			case s.out <- job:
			case <-s.stop:
				// Hand the job back so another subscriber can take it.
				select {
				case s.queue.ch <- job:
				default:
				}
				return
			}
		}
	}
}
