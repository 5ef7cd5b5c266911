package utils

import (
	"mime"
	"strings"
)

var feedMediaTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/rdf+xml",
	"application/feed+json",
	"application/xml",
	"text/xml",
	"application/x-rss+xml",
	"application/x-atom+xml",
}

func mediaType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		return strings.TrimSpace(contentType[:i])
	}
	return contentType
}

// IsFeedContentType reports whether the content type already denotes a feed
// document, so no auto-discovery is needed.
func IsFeedContentType(contentType string) bool {
	return IsStringInSlice(mediaType(contentType), feedMediaTypes)
}

func IsHTMLContentType(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "text/html" || mt == "application/xhtml+xml"
}

func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(mediaType(contentType), "image/")
}
