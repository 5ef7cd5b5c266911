package reader

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/utils"
)

type link struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

type content struct {
	Direction string `json:"direction,omitempty"`
	Content   string `json:"content"`
}

type origin struct {
	StreamID string `json:"streamId"`
	Title    string `json:"title"`
	HTMLURL  string `json:"htmlUrl"`
}

type streamItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Published     int64    `json:"published"`
	Updated       int64    `json:"updated"`
	CrawlTimeMsec string   `json:"crawlTimeMsec"`
	Alternate     []link   `json:"alternate"`
	Summary       *content `json:"summary"`
	Content       *content `json:"content"`
	Author        string   `json:"author"`
	Categories    []string `json:"categories"`
	Origin        *origin  `json:"origin"`
}

type streamContents struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Alternate    []link       `json:"alternate"`
	Updated      int64        `json:"updated"`
	Continuation string       `json:"continuation"`
	Items        []streamItem `json:"items"`
}

func decodeStream(r io.Reader) (*models.FeedDocument, error) {
	var contents streamContents
	if err := json.NewDecoder(r).Decode(&contents); err != nil {
		return nil, errors.Wrap(err, "failed to decode reader stream")
	}

	doc := &models.FeedDocument{
		Title: contents.Title,
		Link:  firstHref(contents.Alternate),
		Items: make([]models.FeedItem, 0, len(contents.Items)),
	}
	for _, item := range contents.Items {
		doc.Items = append(doc.Items, toFeedItem(item))
	}
	return doc, nil
}

func toFeedItem(item streamItem) models.FeedItem {
	body := utils.GetOrDefault(item.Content, utils.GetOrDefault(item.Summary, content{}))
	src := utils.GetOrDefault(item.Origin, origin{})

	feedItem := models.FeedItem{
		ID:        item.ID,
		StreamID:  src.StreamID,
		Title:     item.Title,
		Link:      firstHref(item.Alternate),
		Author:    item.Author,
		Content:   body.Content,
		Published: unixTime(item.Published),
		Updated:   unixTime(item.Updated),
		Read:      hasState(item.Categories, TagRead) && !hasState(item.Categories, TagKeptUnread),
		Starred:   hasState(item.Categories, TagStarred),
		Labels:    labelsOf(item.Categories),
	}
	if feedItem.Updated.IsZero() && item.CrawlTimeMsec != "" {
		if ms, err := strconv.ParseInt(item.CrawlTimeMsec, 10, 64); err == nil {
			feedItem.Updated = time.UnixMilli(ms).UTC()
		}
	}
	return feedItem
}

func firstHref(links []link) string {
	for _, l := range links {
		if l.Href != "" {
			return l.Href
		}
	}
	return ""
}

func unixTime(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
