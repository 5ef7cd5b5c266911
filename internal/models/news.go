package models

import "github.com/customeros/feedsync/internal/enum"

// NewsSnapshot is the synchronizable state of a news item at one point in time.
type NewsSnapshot struct {
	State   enum.NewsState `json:"state"`
	Starred bool           `json:"starred"`
	Labels  []string       `json:"labels,omitempty"`
}

// NewsChange is published by the application whenever a news item changes.
// Previous is nil for freshly created news.
type NewsChange struct {
	ItemID       string        `json:"itemId"`
	StreamID     string        `json:"streamId"`
	Synchronized bool          `json:"synchronized"`
	Previous     *NewsSnapshot `json:"previous,omitempty"`
	Current      NewsSnapshot  `json:"current"`
}

// NewsRef identifies a news item affected by a filter action.
type NewsRef struct {
	ItemID       string `json:"itemId"`
	StreamID     string `json:"streamId"`
	Synchronized bool   `json:"synchronized"`
}

type FilterAction struct {
	Kind  enum.FilterActionKind `json:"kind"`
	Label string                `json:"label,omitempty"`
}
