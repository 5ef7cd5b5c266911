package events

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/feedsync/internal/enum"
	"github.com/customeros/feedsync/internal/logger"
)

type recordingListener struct {
	BaseEventListener
	received []Event
	err      error
}

func (r *recordingListener) Handle(_ context.Context, event Event) error {
	r.received = append(r.received, event)
	return r.err
}

func TestBus_PublishReachesSubscribedListener(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	listener := &recordingListener{BaseEventListener: NewBaseEventListener(logger.NewNopLogger(), EntitiesDeleted)}
	unsubscribe := bus.Subscribe(listener)

	payload := EntitiesDeletedEvent{EntityType: enum.FEED, Links: []string{"http://a/feed"}}
	require.NoError(t, bus.Publish(context.Background(), EntitiesDeleted, payload))
	require.NoError(t, bus.Publish(context.Background(), NewsUpdated, NewsUpdatedEvent{}))

	require.Len(t, listener.received, 1)
	assert.Equal(t, EntitiesDeleted, listener.received[0].Type)

	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), EntitiesDeleted, payload))
	assert.Len(t, listener.received, 1)
}

func TestBus_PublishReturnsListenerError(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	bus.Subscribe(&recordingListener{
		BaseEventListener: NewBaseEventListener(logger.NewNopLogger(), NewsUpdated),
		err:               errors.New("boom"),
	})

	err := bus.Publish(context.Background(), NewsUpdated, NewsUpdatedEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDecodeEventData(t *testing.T) {
	ctx := context.Background()

	typed, err := DecodeEventData[EntitiesDeletedEvent](ctx, Event{Data: EntitiesDeletedEvent{Links: []string{"x"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, typed.Links)

	fromMap, err := DecodeEventData[EntitiesDeletedEvent](ctx, Event{Data: map[string]interface{}{
		"entityType": "FEED",
		"links":      []interface{}{"http://a/feed"},
	}})
	require.NoError(t, err)
	assert.Equal(t, enum.FEED, fromMap.EntityType)
	assert.Equal(t, []string{"http://a/feed"}, fromMap.Links)
}

func TestValidateEvent(t *testing.T) {
	base := NewBaseEventListener(logger.NewNopLogger(), FilterApplied)
	assert.Error(t, base.ValidateEvent(context.Background(), Event{Type: NewsUpdated, Data: 1}))
	assert.Error(t, base.ValidateEvent(context.Background(), Event{Type: FilterApplied}))
	assert.NoError(t, base.ValidateEvent(context.Background(), Event{Type: FilterApplied, Data: FilterAppliedEvent{}}))
}
