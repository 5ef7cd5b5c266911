package utils

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURI keeps only scheme and authority (host and explicit port).
func NormalizeURI(uri *url.URL) *url.URL {
	if uri == nil {
		return nil
	}
	return &url.URL{Scheme: strings.ToLower(uri.Scheme), Host: strings.ToLower(uri.Host)}
}

// WithScheme returns a copy of uri using scheme.
func WithScheme(uri *url.URL, scheme string) *url.URL {
	clone := *uri
	clone.Scheme = scheme
	return &clone
}

// TopLevelURI returns scheme://authority/ for uri.
func TopLevelURI(uri *url.URL) *url.URL {
	top := NormalizeURI(uri)
	top.Path = "/"
	return top
}

// FaviconURI returns the conventional favicon location for uri's authority.
func FaviconURI(uri *url.URL) *url.URL {
	icon := NormalizeURI(uri)
	icon.Path = "/favicon.ico"
	return icon
}

// RewriteHost swaps the first label of a host for "www" (or prepends it for
// a bare domain). The second return value is false when no rewrite applies.
func RewriteHost(uri *url.URL) (*url.URL, bool) {
	host := uri.Hostname()
	if host == "" || strings.HasPrefix(host, "www.") || net.ParseIP(host) != nil {
		return nil, false
	}
	labels := strings.Split(host, ".")
	var rewritten string
	if len(labels) > 2 {
		rewritten = "www." + strings.Join(labels[1:], ".")
	} else {
		rewritten = "www." + host
	}
	clone := *uri
	if port := uri.Port(); port != "" {
		clone.Host = rewritten + ":" + port
	} else {
		clone.Host = rewritten
	}
	return &clone, true
}
