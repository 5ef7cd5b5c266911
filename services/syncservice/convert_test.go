package syncservice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/feedsync/internal/enum"
	"github.com/customeros/feedsync/internal/models"
)

func TestSyncItemFromChange(t *testing.T) {
	unread := &models.NewsSnapshot{State: enum.NewsStateUnread, Labels: []string{"a", "b"}}

	tests := []struct {
		name   string
		change models.NewsChange
		want   models.SyncItem
		ok     bool
	}{
		{
			name:   "new news is ignored",
			change: models.NewsChange{ItemID: "1", Synchronized: true, Current: models.NewsSnapshot{State: enum.NewsStateNew}},
		},
		{
			name:   "unsynchronized news is ignored",
			change: models.NewsChange{ItemID: "1", Previous: unread, Current: models.NewsSnapshot{State: enum.NewsStateRead}},
		},
		{
			name: "read",
			change: models.NewsChange{ItemID: "1", StreamID: "s", Synchronized: true, Previous: unread,
				Current: models.NewsSnapshot{State: enum.NewsStateRead, Labels: []string{"a", "b"}}},
			want: models.SyncItem{ID: "1", StreamID: "s", MarkedRead: true},
			ok:   true,
		},
		{
			name: "updated still counts as unread",
			change: models.NewsChange{ItemID: "1", StreamID: "s", Synchronized: true, Previous: unread,
				Current: models.NewsSnapshot{State: enum.NewsStateUpdated, Labels: []string{"a", "b"}}},
		},
		{
			name: "starred and labels",
			change: models.NewsChange{ItemID: "1", StreamID: "s", Synchronized: true, Previous: unread,
				Current: models.NewsSnapshot{State: enum.NewsStateUnread, Starred: true, Labels: []string{"b", "c"}}},
			want: models.SyncItem{ID: "1", StreamID: "s", Starred: true, AddedLabels: []string{"c"}, RemovedLabels: []string{"a"}},
			ok:   true,
		},
		{
			name: "unread again",
			change: models.NewsChange{ItemID: "1", StreamID: "s", Synchronized: true,
				Previous: &models.NewsSnapshot{State: enum.NewsStateRead, Starred: true},
				Current:  models.NewsSnapshot{State: enum.NewsStateUnread}},
			want: models.SyncItem{ID: "1", StreamID: "s", MarkedUnread: true, Unstarred: true},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SyncItemFromChange(tt.change)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSyncItemsFromFilter(t *testing.T) {
	news := []models.NewsRef{
		{ItemID: "a", StreamID: "s", Synchronized: true},
		{ItemID: "b", StreamID: "s"},
	}

	read := SyncItemsFromFilter(models.FilterAction{Kind: enum.FilterActionMarkRead}, news)
	assert.Equal(t, []models.SyncItem{{ID: "a", StreamID: "s", MarkedRead: true}}, read)

	unstarred := SyncItemsFromFilter(models.FilterAction{Kind: enum.FilterActionMarkUnstarred}, news)
	assert.Equal(t, []models.SyncItem{{ID: "a", StreamID: "s", Unstarred: true}}, unstarred)

	removed := SyncItemsFromFilter(models.FilterAction{Kind: enum.FilterActionRemoveLabel, Label: "x"}, news)
	assert.Equal(t, []models.SyncItem{{ID: "a", StreamID: "s", RemovedLabels: []string{"x"}}}, removed)

	assert.Empty(t, SyncItemsFromFilter(models.FilterAction{Kind: enum.FilterActionAddLabel}, news))
}
