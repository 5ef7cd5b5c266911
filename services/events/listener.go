package events

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
)

// Listener interface defines what all listeners must implement
type Listener interface {
	Handle(ctx context.Context, event Event) error
	GetEventType() string
}

// BaseEventListener provides common functionality for all listeners
type BaseEventListener struct {
	logger    logger.Logger
	eventType string
}

func NewBaseEventListener(logger logger.Logger, eventType string) BaseEventListener {
	return BaseEventListener{
		logger:    logger,
		eventType: eventType,
	}
}

func (b BaseEventListener) GetEventType() string {
	return b.eventType
}

func (b BaseEventListener) ValidateEvent(ctx context.Context, event Event) error {
	span, _ := tracing.StartTracerSpan(ctx, "Events.ValidateEvent")
	defer span.Finish()
	tracing.TagComponentListener(span)

	if event.Type != b.eventType {
		err := errors.Errorf("unexpected event type %q, listener handles %q", event.Type, b.eventType)
		tracing.TraceErr(span, err)
		return err
	}
	if event.Data == nil {
		err := errors.New("event data is nil")
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// DecodeEventData returns the payload as T. Payloads published in-process
// are returned as is; anything else (e.g. a decoded JSON map) is converted
// through JSON.
func DecodeEventData[T any](ctx context.Context, event Event) (T, error) {
	span, _ := tracing.StartTracerSpan(ctx, "Events.DecodeEventData")
	defer span.Finish()

	var decoded T

	switch data := event.Data.(type) {
	case T:
		return data, nil
	case *T:
		if data != nil {
			return *data, nil
		}
	}

	jsonBytes, err := json.Marshal(event.Data)
	if err != nil {
		tracing.TraceErr(span, err)
		return decoded, errors.Wrap(err, "failed to encode event data")
	}

	err = json.Unmarshal(jsonBytes, &decoded)
	if err != nil {
		tracing.TraceErr(span, err)
		return decoded, errors.Wrap(err, "failed to decode event data")
	}

	return decoded, nil
}
