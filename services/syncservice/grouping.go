package syncservice

import (
	"net/url"
	"sort"

	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/services/reader"
)

// Group holds items of one stream that translate to the same remote
// operation.
type Group struct {
	StreamID string
	Key      string
	Items    []models.SyncItem
}

// GroupItems splits items by stream and then by equivalence key. Output is
// ordered by stream, key and item id so passes are reproducible.
func GroupItems(items map[string]models.SyncItem) []Group {
	index := make(map[[2]string]*Group)
	for _, item := range items {
		if item.IsEmpty() {
			continue
		}
		k := [2]string{item.StreamID, item.EquivalenceKey()}
		group, ok := index[k]
		if !ok {
			group = &Group{StreamID: item.StreamID, Key: k[1]}
			index[k] = group
		}
		group.Items = append(group.Items, item)
	}

	groups := make([]Group, 0, len(index))
	for _, group := range index {
		sort.Slice(group.Items, func(i, j int) bool { return group.Items[i].ID < group.Items[j].ID })
		groups = append(groups, *group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].StreamID != groups[j].StreamID {
			return groups[i].StreamID < groups[j].StreamID
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// EditTagParameters builds the edit-tag form for a page of equivalent items.
// Tags are taken from the first item since all items of a page share them.
func EditTagParameters(page []models.SyncItem) url.Values {
	params := url.Values{}
	if len(page) == 0 {
		return params
	}
	for _, item := range page {
		params.Add("i", item.ID)
		params.Add("s", item.StreamID)
	}

	add, remove := tagsOf(page[0])
	for _, tag := range add {
		params.Add("a", tag)
	}
	for _, tag := range remove {
		params.Add("r", tag)
	}
	return params
}

func tagsOf(item models.SyncItem) (add, remove []string) {
	switch {
	case item.MarkedRead:
		add = append(add, reader.TagRead)
		remove = append(remove, reader.TagKeptUnread)
	case item.MarkedUnread:
		add = append(add, reader.TagKeptUnread)
		remove = append(remove, reader.TagRead)
	}
	switch {
	case item.Starred:
		add = append(add, reader.TagStarred)
	case item.Unstarred:
		remove = append(remove, reader.TagStarred)
	}
	for _, label := range sortedCopy(item.AddedLabels) {
		add = append(add, reader.LabelTag(label))
	}
	for _, label := range sortedCopy(item.RemovedLabels) {
		remove = append(remove, reader.LabelTag(label))
	}
	return add, remove
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
