package utils

import "strings"

func IsStringInSlice(s string, slice []string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// IsHostInSlice matches host case-insensitively against plain host names and
// ".suffix" entries.
func IsHostInSlice(host string, slice []string) bool {
	host = strings.ToLower(host)
	for _, v := range slice {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if v == host || (strings.HasPrefix(v, ".") && strings.HasSuffix(host, v)) {
			return true
		}
	}
	return false
}

// Chunk splits items into consecutive pages of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var pages [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, items[start:end])
	}
	return pages
}
