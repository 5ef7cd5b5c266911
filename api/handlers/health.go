package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/feedsync/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the outcome of the last sync pass and the pending item count
func Status(syncService interfaces.SyncService, store interfaces.SyncItemStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sync":    syncService.Status(),
			"pending": store.Len(),
		})
	}
}
