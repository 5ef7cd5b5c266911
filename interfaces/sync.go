package interfaces

import (
	"context"

	"github.com/customeros/feedsync/internal/models"
)

type SyncItemStore interface {
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Persist(ctx context.Context) error
	AddUncommitted(items ...models.SyncItem)
	RemoveUncommitted(ids ...string)
	RemoveAcknowledged(sent ...models.SyncItem) int
	ClearUncommittedItems()
	GetUncommittedItems() map[string]models.SyncItem
	Len() int
	IsEmpty() bool
}

type SyncService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context, emergency bool) error
	Sync(ctx context.Context) error
	// SyncIfIdle runs a pass only when items are pending and no buffered
	// flush is already scheduled.
	SyncIfIdle(ctx context.Context) error
	Status() models.SyncStatus
	SetForceQuickUpdate()
	HandleNewsChanges(ctx context.Context, changes []models.NewsChange)
	HandleFilterAction(ctx context.Context, action models.FilterAction, news []models.NewsRef)
}
