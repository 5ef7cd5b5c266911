package batch

import (
	"sync"
	"time"

	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
)

// Buffer accumulates items for a time window and hands everything collected
// in that window to the receiver in one call. Receiver calls never overlap.
type Buffer[T any] struct {
	mu        sync.Mutex
	pending   []T
	timer     *time.Timer
	deadline  time.Time
	delay     time.Duration
	cancelled bool

	receiver func(items []T)
	flushMu  sync.Mutex
	inFlight sync.WaitGroup
	log      logger.Logger
}

func NewBuffer[T any](delay time.Duration, receiver func(items []T), log logger.Logger) *Buffer[T] {
	return &Buffer[T]{
		delay:    delay,
		receiver: receiver,
		log:      log,
	}
}

func (b *Buffer[T]) Add(item T) {
	b.AddAllWithDelay([]T{item}, b.delay)
}

func (b *Buffer[T]) AddAll(items []T) {
	b.AddAllWithDelay(items, b.delay)
}

// AddAllWithDelay appends items and, when no window is open, opens one that
// closes after delay. A delay that ends before the open window's deadline
// pulls the deadline in; a longer one never pushes it out.
func (b *Buffer[T]) AddAllWithDelay(items []T, delay time.Duration) {
	if len(items) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancelled {
		return
	}
	b.pending = append(b.pending, items...)

	deadline := time.Now().Add(delay)
	if b.timer == nil {
		b.inFlight.Add(1)
		b.timer = time.AfterFunc(delay, b.flush)
		b.deadline = deadline
		return
	}
	// a timer that already fired is about to take these items anyway
	if deadline.Before(b.deadline) && b.timer.Stop() {
		b.timer = time.AfterFunc(delay, b.flush)
		b.deadline = deadline
	}
}

// IsScheduled reports whether a window is open and waiting to flush.
func (b *Buffer[T]) IsScheduled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timer != nil
}

// Cancel stops all future flushes and drops pending items. With
// waitForCompletion it blocks until a flush that already started returns.
func (b *Buffer[T]) Cancel(waitForCompletion bool) {
	b.mu.Lock()
	b.cancelled = true
	if b.timer != nil && b.timer.Stop() {
		b.timer = nil
		b.inFlight.Done()
	}
	b.pending = nil
	b.mu.Unlock()

	if waitForCompletion {
		b.inFlight.Wait()
	}
}

func (b *Buffer[T]) flush() {
	defer b.inFlight.Done()

	b.mu.Lock()
	b.timer = nil
	if b.cancelled {
		b.mu.Unlock()
		return
	}
	items := b.pending
	b.pending = nil
	b.mu.Unlock()

	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if b.log != nil {
		defer tracing.RecoverAndLogToJaeger(b.log)
	}

	b.receiver(items)
}
