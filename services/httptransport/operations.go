package httptransport

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/sniff"
	"github.com/customeros/feedsync/internal/stream"
	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/internal/utils"
)

const (
	maxIconSize = 512 << 10
	maxPageSize = 2 << 20
)

var feedLinkTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/rdf+xml",
	"application/feed+json",
	"application/json",
}

func (h *Handler) Reload(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*models.ReloadResult, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "HttpTransport.Reload")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	var interpret stream.Interpreter
	if h.parser != nil {
		interpret = h.parser.Interpret
	}
	open := func(ctx context.Context) (*stream.Stream, error) {
		return h.OpenStream(ctx, uri, props)
	}

	result, err := stream.Reload(ctx, open, interpret, h.cfg.FallbackEncoding)
	if err != nil && !feedErrors.IsNotModified(err) {
		tracing.TraceErr(span, err)
	}
	return result, err
}

// GetFeedIcon returns the icon of the site behind uri, or nil when none can
// be found. Lookup failures are logged, only cancellation is returned.
func (h *Handler) GetFeedIcon(ctx context.Context, uri *url.URL) ([]byte, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "HttpTransport.GetFeedIcon")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	uri = resolveFeedScheme(uri)
	if uri.Scheme == "file" {
		return nil, nil
	}

	if icon := h.loadIcon(ctx, utils.FaviconURI(uri)); len(icon) > 0 {
		return icon, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := utils.TopLevelURI(uri)
	doc, base, err := h.loadHTML(ctx, page)
	if err != nil && feedErrors.IsPlainConnectionError(err) {
		if rewritten, ok := utils.RewriteHost(page); ok {
			h.log.Debugf("Retrying icon lookup for %s on %s", page, rewritten)
			doc, base, err = h.loadHTML(ctx, rewritten)
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		h.log.Debugf("No icon page for %s: %v", uri, err)
		return nil, nil
	}

	for _, href := range iconLinks(doc) {
		iconURI, err := base.Parse(href)
		if err != nil {
			continue
		}
		if icon := h.loadIcon(ctx, iconURI); len(icon) > 0 {
			return icon, nil
		}
	}
	return nil, nil
}

// GetLabel returns the title of the document behind uri without downloading
// more than needed.
func (h *Handler) GetLabel(ctx context.Context, uri *url.URL) (string, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "HttpTransport.GetLabel")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	s, err := h.OpenStream(ctx, uri, &models.ConnectionProperties{Timeout: h.labelTimeout()})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	defer s.Abort()

	title, err := sniff.ScanTitle(ctx, s, h.cfg.FallbackEncoding)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return title, nil
}

// GetFeed returns uri when it already points at a feed, otherwise the first
// feed advertised by the page. It returns nil when the page has none.
func (h *Handler) GetFeed(ctx context.Context, uri *url.URL) (*url.URL, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "HttpTransport.GetFeed")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	s, err := h.OpenStream(ctx, uri, &models.ConnectionProperties{})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if utils.IsFeedContentType(s.ContentType()) {
		s.Abort()
		return uri, nil
	}

	body, err := io.ReadAll(io.LimitReader(s, maxPageSize))
	s.Abort()
	if err != nil {
		return nil, feedErrors.NewConnectionError("failed to read page", err)
	}
	if !utils.IsHTMLContentType(s.ContentType()) && looksLikeFeed(body) {
		return uri, nil
	}

	doc, err := parseHTML(bytes.NewReader(body), s.ContentType())
	if err != nil {
		return nil, err
	}
	base := s.URI()
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if parsed, err := base.Parse(href); err == nil {
			base = parsed
		}
	}
	for _, href := range feedLinks(doc) {
		if feedURI, err := base.Parse(href); err == nil {
			return feedURI, nil
		}
	}
	return nil, nil
}

func (h *Handler) loadIcon(ctx context.Context, uri *url.URL) []byte {
	s, err := h.OpenStream(ctx, uri, &models.ConnectionProperties{Timeout: h.labelTimeout()})
	if err != nil {
		h.log.Debugf("Icon %s unavailable: %v", uri, err)
		return nil
	}
	defer s.Abort()

	if ct := s.ContentType(); ct != "" && !utils.IsImageContentType(ct) && !strings.HasPrefix(ct, "application/octet-stream") {
		return nil
	}
	icon, err := io.ReadAll(io.LimitReader(s, maxIconSize))
	if err != nil {
		return nil
	}
	return icon
}

func (h *Handler) loadHTML(ctx context.Context, uri *url.URL) (*goquery.Document, *url.URL, error) {
	s, err := h.OpenStream(ctx, uri, &models.ConnectionProperties{})
	if err != nil {
		return nil, nil, err
	}
	defer s.Abort()

	doc, err := parseHTML(io.LimitReader(s, maxPageSize), s.ContentType())
	if err != nil {
		return nil, nil, err
	}
	return doc, s.URI(), nil
}

func parseHTML(r io.Reader, contentType string) (*goquery.Document, error) {
	decoded, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, &feedErrors.EncodingError{Cause: err}
	}
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page")
	}
	return doc, nil
}

func iconLinks(doc *goquery.Document) []string {
	var links []string
	doc.Find("link[rel][href]").Each(func(_ int, sel *goquery.Selection) {
		rel := strings.ToLower(sel.AttrOr("rel", ""))
		for _, token := range strings.Fields(rel) {
			if token == "icon" || token == "apple-touch-icon" {
				links = append(links, sel.AttrOr("href", ""))
				return
			}
		}
	})
	return links
}

func feedLinks(doc *goquery.Document) []string {
	var links []string
	doc.Find("link[rel][href]").Each(func(_ int, sel *goquery.Selection) {
		if !utils.IsStringInSlice("alternate", strings.Fields(strings.ToLower(sel.AttrOr("rel", "")))) {
			return
		}
		linkType := strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))
		if utils.IsStringInSlice(linkType, feedLinkTypes) {
			links = append(links, sel.AttrOr("href", ""))
		}
	})
	return links
}

func looksLikeFeed(body []byte) bool {
	head := strings.ToLower(strings.TrimSpace(string(body[:min(len(body), 512)])))
	head = strings.TrimPrefix(head, "\ufeff")
	if strings.HasPrefix(head, "<?xml") {
		return !strings.Contains(head, "<html")
	}
	return strings.HasPrefix(head, "<rss") || strings.HasPrefix(head, "<feed") || strings.HasPrefix(head, "<rdf")
}
