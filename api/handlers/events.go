package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/services/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// PublishNewsUpdated forwards local news changes reported by the desktop shell
func PublishNewsUpdated(bus EventPublisher) gin.HandlerFunc {
	return publish[events.NewsUpdatedEvent](bus, events.NewsUpdated)
}

// PublishFilterApplied forwards the effect of a news filter
func PublishFilterApplied(bus EventPublisher) gin.HandlerFunc {
	return publish[events.FilterAppliedEvent](bus, events.FilterApplied)
}

// PublishEntitiesDeleted forwards deleted feeds so their credentials are dropped
func PublishEntitiesDeleted(bus EventPublisher) gin.HandlerFunc {
	return publish[events.EntitiesDeletedEvent](bus, events.EntitiesDeleted)
}

func publish[T any](bus EventPublisher, eventType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "Handlers.Publish")
		defer span.Finish()
		tracing.TagComponentRest(span)
		span.SetTag("event.type", eventType)

		var payload T
		if err := c.ShouldBindJSON(&payload); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := bus.Publish(ctx, eventType, payload); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "type": eventType})
	}
}
