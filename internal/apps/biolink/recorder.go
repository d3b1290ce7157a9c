package biolink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	hitBatchSize  = 100
	maxBufferHits = 10000
)

// Recorder buffers analytics hits and writes them in batches. Each flushed
// batch is also published to the analytics topic.
type Recorder struct {
	db        *gorm.DB
	publisher events.Publisher

	mu       sync.Mutex
	buffer   []AnalyticsHit
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRecorder(db *gorm.DB, publisher events.Publisher, interval time.Duration) *Recorder {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	r := &Recorder{
		db:        db,
		publisher: publisher,
		buffer:    make([]AnalyticsHit, 0, hitBatchSize),
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
	}
	r.wg.Add(1)
	go r.flushLoop()
	return r
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			r.Flush()
		case <-r.done:
			r.Flush()
			return
		}
	}
}

// Record queues a hit. When the buffer is full the hit is dropped.
func (r *Recorder) Record(hit AnalyticsHit) {
	if hit.ID == uuid.Nil {
		hit.ID = uuid.New()
	}
	if hit.CreatedAt.IsZero() {
		hit.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	if len(r.buffer) >= maxBufferHits {
		r.mu.Unlock()
		metrics.AnalyticsDropped.Inc()
		return
	}
	r.buffer = append(r.buffer, hit)
	needFlush := len(r.buffer) >= hitBatchSize
	r.mu.Unlock()

	metrics.AnalyticsHits.WithLabelValues(hit.Kind).Inc()
	if needFlush {
		go r.Flush()
	}
}

// Flush writes buffered hits now.
func (r *Recorder) Flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buffer
	r.buffer = make([]AnalyticsHit, 0, hitBatchSize)
	r.mu.Unlock()

	if err := r.db.CreateInBatches(batch, hitBatchSize).Error; err != nil {
		metrics.AnalyticsDropped.Add(float64(len(batch)))
		slog.Error("failed to flush analytics hits", "component", "biolink", "count", len(batch), "error", err)
	}

	msgs := make([]events.Message, len(batch))
	for i := range batch {
		msgs[i] = events.Message{Key: batch[i].PageID.String(), Payload: batch[i]}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.publisher.PublishBatch(ctx, msgs); err != nil {
		slog.Warn("failed to publish analytics hits", "component", "biolink", "count", len(batch), "error", err)
	}
}

// Close flushes pending hits and stops the background loop.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
	r.wg.Wait()
	return nil
}
