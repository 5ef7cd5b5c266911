package syncservice

import (
	"github.com/customeros/feedsync/internal/enum"
	"github.com/customeros/feedsync/internal/models"
)

// SyncItemFromChange derives the remote mutation for a change of a
// synchronized news item. New news (no previous state) produce nothing.
func SyncItemFromChange(change models.NewsChange) (models.SyncItem, bool) {
	if !change.Synchronized || change.Previous == nil || change.ItemID == "" {
		return models.SyncItem{}, false
	}

	item := models.SyncItem{ID: change.ItemID, StreamID: change.StreamID}
	previous, current := change.Previous, change.Current

	if previous.State.IsUnread() != current.State.IsUnread() {
		if current.State.IsUnread() {
			item.SetMarkedUnread()
		} else {
			item.SetMarkedRead()
		}
	}

	if previous.Starred != current.Starred {
		if current.Starred {
			item.SetStarred()
		} else {
			item.SetUnstarred()
		}
	}

	before := toSet(previous.Labels)
	after := toSet(current.Labels)
	for _, label := range current.Labels {
		if _, ok := before[label]; !ok {
			item.AddLabel(label)
		}
	}
	for _, label := range previous.Labels {
		if _, ok := after[label]; !ok {
			item.RemoveLabel(label)
		}
	}

	return item, !item.IsEmpty()
}

// SyncItemsFromFilter returns one item per synchronized news reference.
func SyncItemsFromFilter(action models.FilterAction, news []models.NewsRef) []models.SyncItem {
	var items []models.SyncItem
	for _, ref := range news {
		if !ref.Synchronized || ref.ItemID == "" {
			continue
		}
		item := models.SyncItem{ID: ref.ItemID, StreamID: ref.StreamID}
		switch action.Kind {
		case enum.FilterActionMarkRead:
			item.SetMarkedRead()
		case enum.FilterActionMarkUnread:
			item.SetMarkedUnread()
		case enum.FilterActionMarkStarred:
			item.SetStarred()
		case enum.FilterActionMarkUnstarred:
			item.SetUnstarred()
		case enum.FilterActionAddLabel:
			if action.Label != "" {
				item.AddLabel(action.Label)
			}
		case enum.FilterActionRemoveLabel:
			if action.Label != "" {
				item.RemoveLabel(action.Label)
			}
		}
		if !item.IsEmpty() {
			items = append(items, item)
		}
	}
	return items
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
