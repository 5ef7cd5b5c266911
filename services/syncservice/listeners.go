package syncservice

import (
	"context"

	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/services/events"
)

type newsListener struct {
	events.BaseEventListener
	service *Service
}

func (l *newsListener) Handle(ctx context.Context, event events.Event) error {
	span, ctx := tracing.StartTracerSpan(ctx, "SyncService.newsListener.Handle")
	defer span.Finish()
	tracing.TagComponentListener(span)

	if err := l.ValidateEvent(ctx, event); err != nil {
		return err
	}
	data, err := events.DecodeEventData[events.NewsUpdatedEvent](ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	l.service.HandleNewsChanges(ctx, data.Changes)
	return nil
}

type filterListener struct {
	events.BaseEventListener
	service *Service
}

func (l *filterListener) Handle(ctx context.Context, event events.Event) error {
	span, ctx := tracing.StartTracerSpan(ctx, "SyncService.filterListener.Handle")
	defer span.Finish()
	tracing.TagComponentListener(span)

	if err := l.ValidateEvent(ctx, event); err != nil {
		return err
	}
	data, err := events.DecodeEventData[events.FilterAppliedEvent](ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	l.service.HandleFilterAction(ctx, data.Action, data.News)
	return nil
}
