package events

import (
	"time"

	"github.com/customeros/feedsync/internal/enum"
	"github.com/customeros/feedsync/internal/models"
)

const (
	NewsUpdated     = "news.updated"
	FilterApplied   = "filter.applied"
	EntitiesDeleted = "entities.deleted"
)

type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type NewsUpdatedEvent struct {
	Changes []models.NewsChange `json:"changes"`
}

type FilterAppliedEvent struct {
	Action models.FilterAction `json:"action"`
	News   []models.NewsRef    `json:"news"`
}

// EntitiesDeletedEvent lists the links of deleted entities. For feeds these
// are the feed URIs.
type EntitiesDeletedEvent struct {
	EntityType enum.EntityType `json:"entityType"`
	Links      []string        `json:"links"`
}
