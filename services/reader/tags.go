package reader

import "strings"

// Stream and tag identifiers of the aggregation API.
const (
	TagRead       = "user/-/state/com.google/read"
	TagKeptUnread = "user/-/state/com.google/kept-unread"
	TagStarred    = "user/-/state/com.google/starred"
	LabelPrefix   = "user/-/label/"
)

const (
	PseudoHost      = "reader"
	PathAll         = "/all"
	PathStarred     = "/starred"
	PathShared      = "/shared"
	PathRecommended = "/recommended"
	PathNotes       = "/notes"
	PathEditTag     = "/edit-tag"
)

type pseudoStream struct {
	streamID string
	label    string
}

var pseudoStreams = map[string]pseudoStream{
	PathAll:         {"user/-/state/com.google/reading-list", "All Items"},
	PathStarred:     {"user/-/state/com.google/starred", "Starred Items"},
	PathShared:      {"user/-/state/com.google/broadcast", "Shared Items"},
	PathRecommended: {"user/-/state/com.google/broadcast-friends", "Recommended Items"},
	PathNotes:       {"user/-/state/com.google/created", "Notes"},
}

func LabelTag(label string) string {
	return LabelPrefix + label
}

// hasState matches a category such as user/12345/state/com.google/read
// against a tag written with the "-" user placeholder.
func hasState(categories []string, tag string) bool {
	suffix := strings.TrimPrefix(tag, "user/-")
	for _, c := range categories {
		if c == tag || (strings.HasPrefix(c, "user/") && strings.HasSuffix(c, suffix)) {
			return true
		}
	}
	return false
}

func labelsOf(categories []string) []string {
	var labels []string
	for _, c := range categories {
		if !strings.HasPrefix(c, "user/") {
			continue
		}
		if i := strings.Index(c, "/label/"); i >= 0 {
			labels = append(labels, c[i+len("/label/"):])
		}
	}
	return labels
}
