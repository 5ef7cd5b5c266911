package events

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
)

// Bus dispatches application events to in-process listeners. Listeners run
// on the publishing goroutine and must not block.
type Bus struct {
	logger        logger.Logger
	listenerMutex sync.RWMutex
	listeners     map[string]map[int]Listener
	nextID        int
}

func NewBus(log logger.Logger) *Bus {
	return &Bus{
		logger:    log,
		listeners: make(map[string]map[int]Listener),
	}
}

// Subscribe registers listener for its event type and returns a function
// that removes it again.
func (b *Bus) Subscribe(listener Listener) func() {
	b.listenerMutex.Lock()
	defer b.listenerMutex.Unlock()

	eventType := listener.GetEventType()
	if b.listeners[eventType] == nil {
		b.listeners[eventType] = make(map[int]Listener)
	}
	id := b.nextID
	b.nextID++
	b.listeners[eventType][id] = listener
	b.logger.Debugf("Registered listener for event type: %s", eventType)

	return func() {
		b.listenerMutex.Lock()
		defer b.listenerMutex.Unlock()
		delete(b.listeners[eventType], id)
	}
}

func (b *Bus) Publish(ctx context.Context, eventType string, data any) error {
	span, ctx := tracing.StartTracerSpan(ctx, "Bus.Publish")
	defer span.Finish()
	span.LogKV("event_type", eventType)

	b.listenerMutex.RLock()
	targets := make([]Listener, 0, len(b.listeners[eventType]))
	for _, l := range b.listeners[eventType] {
		targets = append(targets, l)
	}
	b.listenerMutex.RUnlock()

	if len(targets) == 0 {
		b.logger.Debugf("No listener found for event type: %s", eventType)
		return nil
	}

	event := Event{Type: eventType, Timestamp: time.Now(), Data: data}

	var firstErr error
	for _, listener := range targets {
		if err := listener.Handle(ctx, event); err != nil {
			tracing.TraceErr(span, err)
			b.logger.Errorf("Listener for %s failed: %v", eventType, err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "handling %s", eventType)
			}
		}
	}
	return firstErr
}
