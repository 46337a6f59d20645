package signals

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gerun/internal/alloc"
)

// FlushFunc receives each completed batch of validated opportunities
type FlushFunc func(ctx context.Context, opps []alloc.Opportunity)

// Batcher collects validated opportunities and flushes them to a handler
// when the batch fills or the flush interval elapses, whichever comes first.
// Batching keeps one allocation run per wave of signals instead of one per
// record.
type Batcher struct {
	mu      sync.Mutex
	pending []alloc.Opportunity

	size     int
	interval time.Duration
	flush    FlushFunc
}

// NewBatcher creates a batcher flushing at size records or every interval
func NewBatcher(size int, interval time.Duration, flush FlushFunc) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		pending:  make([]alloc.Opportunity, 0, size),
		size:     size,
		interval: interval,
		flush:    flush,
	}
}

// Add appends one opportunity, flushing immediately when the batch fills
func (b *Batcher) Add(ctx context.Context, opp alloc.Opportunity) {
	b.mu.Lock()
	b.pending = append(b.pending, opp)
	full := len(b.pending) >= b.size
	var batch []alloc.Opportunity
	if full {
		batch = b.take()
	}
	b.mu.Unlock()

	if full {
		b.dispatch(ctx, batch)
	}
}

// Flush hands off whatever is pending, if anything
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.take()
	b.mu.Unlock()

	if len(batch) > 0 {
		b.dispatch(ctx, batch)
	}
}

// Run flushes on the interval until the context is cancelled, then performs
// one final flush so shutdown never drops collected records
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}

// take detaches the pending slice; caller holds the lock
func (b *Batcher) take() []alloc.Opportunity {
	batch := b.pending
	b.pending = make([]alloc.Opportunity, 0, b.size)
	return batch
}

func (b *Batcher) dispatch(ctx context.Context, batch []alloc.Opportunity) {
	log.Debug().Int("records", len(batch)).Msg("opportunity batch flushed")
	b.flush(ctx, batch)
}

// Buffer holds the most recent validated batch for read-side consumers. One
// writer (the flush path), many readers.
type Buffer struct {
	mu        sync.RWMutex
	opps      []alloc.Opportunity
	updatedAt time.Time
}

// NewBuffer returns an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Store replaces the buffered batch
func (b *Buffer) Store(opps []alloc.Opportunity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opps = opps
	b.updatedAt = time.Now().UTC()
}

// Latest returns the buffered batch and when it was stored. The returned
// slice is shared; callers must not mutate it.
func (b *Buffer) Latest() ([]alloc.Opportunity, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.opps, b.updatedAt
}
