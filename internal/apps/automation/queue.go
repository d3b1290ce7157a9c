package automation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/events"
)

var (
	ErrQueueFull   = errors.New("automation queue is full")
	ErrQueueClosed = errors.New("automation queue is closed")
)

// Dispatcher hands an event to the engine asynchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// WorkerPool delivers events to the engine from a bounded in-process queue.
type WorkerPool struct {
	engine *Engine
	jobs   chan Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewWorkerPool(engine *Engine, workers, size int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 256
	}
	p := &WorkerPool{engine: engine, jobs: make(chan Event, size)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for ev := range p.jobs {
		if err := p.engine.Handle(context.Background(), ev); err != nil {
			slog.Error("automation event failed", "component", "automation", "event_id", ev.ID, "type", ev.Type, "error", err)
		}
	}
}

// Dispatch enqueues ev without blocking. It returns ErrQueueClosed once
// Close has been called.
func (p *WorkerPool) Dispatch(_ context.Context, ev Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.jobs <- ev:
		return nil
	default:
		slog.Warn("automation queue full, dropping event", "component", "automation", "event_id", ev.ID, "type", ev.Type)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to finish.
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// KafkaDispatcher publishes events to a topic consumed by Engine.HandleMessage.
type KafkaDispatcher struct {
	publisher events.Publisher
}

func NewKafkaDispatcher(publisher events.Publisher) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: publisher}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, ev Event) error {
	return d.publisher.Publish(ctx, ev.UserID.String(), ev)
}

func (d *KafkaDispatcher) Close() error {
	return d.publisher.Close()
}
