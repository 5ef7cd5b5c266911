package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/feedsync/interfaces"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
)

// TriggerSync starts a sync pass. With ?wait=true the request blocks until
// the pass is over, with ?quick=true the next buffered window is shortened
// instead of running a pass right away.
func TriggerSync(syncService interfaces.SyncService, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "Handlers.TriggerSync")
		defer span.Finish()
		tracing.TagComponentRest(span)

		if c.Query("quick") == "true" {
			syncService.SetForceQuickUpdate()
			c.JSON(http.StatusAccepted, gin.H{"status": "quick update scheduled"})
			return
		}

		if c.Query("wait") == "true" {
			if err := syncService.Sync(ctx); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "sync": syncService.Status()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"sync": syncService.Status()})
			return
		}

		go func() {
			defer tracing.RecoverAndLogToJaeger(log)
			if err := syncService.Sync(context.Background()); err != nil {
				log.Warnf("Requested sync failed: %v", err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "sync started"})
	}
}

// PendingItems lists the items not yet acknowledged by the service
func PendingItems(store interfaces.SyncItemStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.GetUncommittedItems())
	}
}
