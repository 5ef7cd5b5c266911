package models

import (
	"net/url"
	"time"
)

// FeedDocument is the minimal document model handed to parsers and filled
// by the remote-reader adapter.
type FeedDocument struct {
	Title string     `json:"title,omitempty"`
	Link  string     `json:"link,omitempty"`
	Items []FeedItem `json:"items,omitempty"`
}

type FeedItem struct {
	ID        string    `json:"id"`
	StreamID  string    `json:"streamId,omitempty"`
	Title     string    `json:"title,omitempty"`
	Link      string    `json:"link,omitempty"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content,omitempty"`
	Published time.Time `json:"published,omitempty"`
	Updated   time.Time `json:"updated,omitempty"`
	Read      bool      `json:"read"`
	Starred   bool      `json:"starred"`
	Labels    []string  `json:"labels,omitempty"`
}

// ParseOptions are passed to an external document parser.
type ParseOptions struct {
	// ForcedEncoding overrides any encoding declared by the document.
	ForcedEncoding string
	BaseURI        *url.URL
}

// ReloadResult is what a handler returns from a full feed reload.
type ReloadResult struct {
	Document       *FeedDocument
	ConditionalGet *ConditionalGetToken
	FinalURI       *url.URL
}
