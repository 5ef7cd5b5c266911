package models

import "net/http"

// ConditionalGetToken carries the cache validators returned by the last
// successful fetch of URI.
type ConditionalGetToken struct {
	URI          string `json:"uri"`
	LastModified string `json:"lastModified,omitempty"`
	ETag         string `json:"etag,omitempty"`
}

// NewConditionalGetToken returns nil when the response carried no validator.
func NewConditionalGetToken(uri, lastModified, etag string) *ConditionalGetToken {
	if lastModified == "" && etag == "" {
		return nil
	}
	return &ConditionalGetToken{URI: uri, LastModified: lastModified, ETag: etag}
}

// Apply sets If-Modified-Since and If-None-Match for the validators present.
func (t *ConditionalGetToken) Apply(header http.Header) {
	if t == nil {
		return
	}
	if t.LastModified != "" {
		header.Set("If-Modified-Since", t.LastModified)
	}
	if t.ETag != "" {
		header.Set("If-None-Match", t.ETag)
	}
}
