package enum

type NewsState string

const (
	NewsStateNew     NewsState = "new"
	NewsStateUnread  NewsState = "unread"
	NewsStateUpdated NewsState = "updated"
	NewsStateRead    NewsState = "read"
	NewsStateHidden  NewsState = "hidden"
	NewsStateDeleted NewsState = "deleted"
)

func (s NewsState) String() string {
	return string(s)
}

// IsUnread reports whether the state counts as unread for synchronization.
func (s NewsState) IsUnread() bool {
	return s == NewsStateNew || s == NewsStateUnread || s == NewsStateUpdated
}

type FilterActionKind string

const (
	FilterActionMarkRead      FilterActionKind = "mark_read"
	FilterActionMarkUnread    FilterActionKind = "mark_unread"
	FilterActionMarkStarred   FilterActionKind = "mark_starred"
	FilterActionMarkUnstarred FilterActionKind = "mark_unstarred"
	FilterActionAddLabel      FilterActionKind = "add_label"
	FilterActionRemoveLabel   FilterActionKind = "remove_label"
)

func (k FilterActionKind) String() string {
	return string(k)
}
