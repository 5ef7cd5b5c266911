package models

import (
	"sort"
	"strconv"
	"strings"
)

// SyncItem is one pending remote mutation for a single item.
type SyncItem struct {
	ID            string   `json:"id"`
	StreamID      string   `json:"streamId"`
	MarkedRead    bool     `json:"markedRead,omitempty"`
	MarkedUnread  bool     `json:"markedUnread,omitempty"`
	Starred       bool     `json:"starred,omitempty"`
	Unstarred     bool     `json:"unstarred,omitempty"`
	AddedLabels   []string `json:"addedLabels,omitempty"`
	RemovedLabels []string `json:"removedLabels,omitempty"`
}

func (s *SyncItem) SetMarkedRead() {
	s.MarkedRead = true
	s.MarkedUnread = false
}

func (s *SyncItem) SetMarkedUnread() {
	s.MarkedUnread = true
	s.MarkedRead = false
}

func (s *SyncItem) SetStarred() {
	s.Starred = true
	s.Unstarred = false
}

func (s *SyncItem) SetUnstarred() {
	s.Unstarred = true
	s.Starred = false
}

func (s *SyncItem) AddLabel(label string) {
	s.RemovedLabels = removeString(s.RemovedLabels, label)
	s.AddedLabels = appendUnique(s.AddedLabels, label)
}

func (s *SyncItem) RemoveLabel(label string) {
	s.AddedLabels = removeString(s.AddedLabels, label)
	s.RemovedLabels = appendUnique(s.RemovedLabels, label)
}

// Merge folds a later mutation of the same item into s. Flags are unioned and
// an opposite flag or label operation from other wins.
func (s *SyncItem) Merge(other SyncItem) {
	if s.StreamID == "" {
		s.StreamID = other.StreamID
	}
	if other.MarkedRead {
		s.SetMarkedRead()
	}
	if other.MarkedUnread {
		s.SetMarkedUnread()
	}
	if other.Starred {
		s.SetStarred()
	}
	if other.Unstarred {
		s.SetUnstarred()
	}
	for _, label := range other.AddedLabels {
		s.AddLabel(label)
	}
	for _, label := range other.RemovedLabels {
		s.RemoveLabel(label)
	}
}

func (s SyncItem) IsEmpty() bool {
	return !s.MarkedRead && !s.MarkedUnread && !s.Starred && !s.Unstarred &&
		len(s.AddedLabels) == 0 && len(s.RemovedLabels) == 0
}

// EquivalenceKey is identical for items that translate to the same remote
// operation, regardless of label order.
func (s SyncItem) EquivalenceKey() string {
	var b strings.Builder
	b.WriteString("r=" + strconv.FormatBool(s.MarkedRead))
	b.WriteString(";u=" + strconv.FormatBool(s.MarkedUnread))
	b.WriteString(";s=" + strconv.FormatBool(s.Starred))
	b.WriteString(";x=" + strconv.FormatBool(s.Unstarred))
	b.WriteString(";a=" + strings.Join(sortedCopy(s.AddedLabels), "\x1f"))
	b.WriteString(";d=" + strings.Join(sortedCopy(s.RemovedLabels), "\x1f"))
	return b.String()
}

// Clone returns a deep copy so callers never share label slices.
func (s SyncItem) Clone() SyncItem {
	c := s
	c.AddedLabels = append([]string(nil), s.AddedLabels...)
	c.RemovedLabels = append([]string(nil), s.RemovedLabels...)
	if len(c.AddedLabels) == 0 {
		c.AddedLabels = nil
	}
	if len(c.RemovedLabels) == 0 {
		c.RemovedLabels = nil
	}
	return c
}

// ApplyTo replays the mutation onto a freshly fetched item.
func (s SyncItem) ApplyTo(item *FeedItem) {
	if item == nil {
		return
	}
	if s.MarkedRead {
		item.Read = true
	}
	if s.MarkedUnread {
		item.Read = false
	}
	if s.Starred {
		item.Starred = true
	}
	if s.Unstarred {
		item.Starred = false
	}
	for _, label := range s.RemovedLabels {
		item.Labels = removeString(item.Labels, label)
	}
	for _, label := range s.AddedLabels {
		item.Labels = appendUnique(item.Labels, label)
	}
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

func removeString(values []string, value string) []string {
	var out []string
	for _, v := range values {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
