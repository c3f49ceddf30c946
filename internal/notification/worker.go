package notification

import (
	"context"
	"log"
)

// Sink delivers events to one outbound channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// WorkerPool delivers events asynchronously. Delivery is best effort: sink
// failures are logged and never reach the command that emitted the event.
type WorkerPool struct {
	size  int
	jobs  chan Event
	sinks []Sink
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, sinks ...Sink) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:  size,
		jobs:  make(chan Event, queueSize), // Buffered channel
		sinks: sinks,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.deliver(ctx, ev)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Emit queues ev without blocking. A full queue drops the event.
func (wp *WorkerPool) Emit(ev Event) {
	select {
	case wp.jobs <- ev:
	default:
		log.Printf("Warning: notification queue full, dropping %s event %s for entity %d", ev.Kind, ev.ID, ev.EntityID)
	}
}

// Flush delivers every queued event on the calling goroutine. One-shot
// commands call it before exiting instead of starting workers.
func (wp *WorkerPool) Flush(ctx context.Context) {
	for {
		select {
		case ev := <-wp.jobs:
			wp.deliver(ctx, ev)
		default:
			return
		}
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, ev Event) {
	for _, sink := range wp.sinks {
		if err := sink.Deliver(ctx, ev); err != nil {
			log.Printf("Error delivering %s event %s via %s: %v", ev.Kind, ev.ID, sink.Name(), err)
		}
	}
}
